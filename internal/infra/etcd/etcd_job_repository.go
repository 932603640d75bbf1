// internal/infra/etcd/etcd_job_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"job-scheduler/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	JobSaveDir = "/scheduler/jobs/"
)

type etcdJobRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdJobRepository creates a new repository for jobs backed by etcd.
// The etcd mod revision of a job key is used as the record version.
func NewEtcdJobRepository(client *clientv3.Client, logger *slog.Logger) domain.JobRepository {
	return &etcdJobRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("job-scheduler-etcd-repo"),
	}
}

// Save persists the job record with a compare-and-swap on its revision.
func (r *etcdJobRepository) Save(ctx context.Context, rec *domain.JobRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Save")
	defer span.End()

	jobJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal job to JSON: %w", err)
	}

	key := path.Join(JobSaveDir, rec.ID)
	span.SetAttributes(
		attribute.String("job.id", rec.ID),
		attribute.String("etcd.key", key),
		attribute.Int64("job.version", rec.Version),
	)

	var cmp clientv3.Cmp
	if rec.Version == 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", rec.Version)
	}

	resp, err := r.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(jobJSON))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job to etcd")
		return fmt.Errorf("failed to save job %s to etcd: %w", rec.ID, err)
	}
	if !resp.Succeeded {
		span.SetStatus(codes.Error, "job version conflict")
		return fmt.Errorf("job %s at version %d: %w", rec.ID, rec.Version, domain.ErrConcurrentUpdate)
	}

	rec.Version = resp.Header.Revision
	return nil
}

// Delete removes a job from etcd.
func (r *etcdJobRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	key := path.Join(JobSaveDir, id)
	resp, err := r.client.Delete(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from etcd")
		return fmt.Errorf("failed to delete job %s from etcd: %w", id, err)
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}
	return nil
}

// Get retrieves a job from etcd.
func (r *etcdJobRepository) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	key := path.Join(JobSaveDir, id)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from etcd")
		return nil, fmt.Errorf("failed to get job %s from etcd: %w", id, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}

	var rec domain.JobRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s from JSON: %w", id, err)
	}
	rec.Version = resp.Kvs[0].ModRevision
	return &rec, nil
}

// List retrieves all jobs from etcd.
func (r *etcdJobRepository) List(ctx context.Context) ([]*domain.JobRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.List")
	defer span.End()

	resp, err := r.client.Get(ctx, JobSaveDir, clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from etcd")
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	jobs := make([]*domain.JobRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec domain.JobRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			r.logger.Warn("failed to unmarshal job from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		rec.Version = kv.ModRevision
		jobs = append(jobs, &rec)
	}
	return jobs, nil
}
