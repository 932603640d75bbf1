// internal/infra/etcd/etcd_execution_repository.go
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

// ExecutionHistoryDir holds one key per dispatch: {dir}/{jobID}/{executionID}.
const ExecutionHistoryDir = "/scheduler/history/"

const defaultHistoryPageSize = 20

type etcdExecutionRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdExecutionRepository creates a history repository backed by etcd.
// Saving the same execution twice overwrites the earlier value while keeping
// its create revision, so a running record keeps its place in the history.
func NewEtcdExecutionRepository(client *clientv3.Client, logger *slog.Logger) domain.ExecutionRepository {
	return &etcdExecutionRepository{
		client: client,
		logger: logger.With("component", "etcd-execution-repo"),
		tracer: otel.Tracer("job-scheduler-etcd-execution-repo"),
	}
}

func historyKey(jobID, executionID string) string {
	return path.Join(ExecutionHistoryDir, jobID, executionID)
}

func historyPrefix(jobID string) string {
	return path.Join(ExecutionHistoryDir, jobID) + "/"
}

func (r *etcdExecutionRepository) Save(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveExecution")
	defer span.End()

	if err := record.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid execution record")
		return err
	}
	key := historyKey(record.JobID, record.ID)
	span.SetAttributes(attribute.String("etcd.key", key), attribute.String("execution.status", string(record.Status)))

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode execution record %s: %w", record.ID, err)
	}
	if _, err := r.client.Put(ctx, key, string(value)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "etcd put failed")
		return fmt.Errorf("failed to save execution record %s: %w", record.ID, err)
	}
	return nil
}

func (r *etcdExecutionRepository) Get(ctx context.Context, jobID, executionID string) (*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetExecution")
	defer span.End()
	key := historyKey(jobID, executionID)
	span.SetAttributes(attribute.String("etcd.key", key))

	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "etcd get failed")
		return nil, fmt.Errorf("failed to get execution record %s/%s: %w", jobID, executionID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("execution record %s/%s: %w", jobID, executionID, domain.ErrExecutionNotFound)
	}
	return decodeExecution(resp.Kvs[0].Value)
}

// ListByJobID returns a page of the job's history, newest first. etcd has no
// offset, so the range is limited to the end of the requested page and the
// earlier pages are dropped client side.
func (r *etcdExecutionRepository) ListByJobID(ctx context.Context, jobID string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListExecutions")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	skip := (page - 1) * pageSize
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	resp, err := r.client.Get(ctx, historyPrefix(jobID),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
		clientv3.WithLimit(int64(skip+pageSize)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "etcd range failed")
		return nil, fmt.Errorf("failed to list execution records for job %s: %w", jobID, err)
	}

	records := make([]*domain.ExecutionRecord, 0, pageSize)
	if skip >= len(resp.Kvs) {
		return records, nil
	}
	for _, kv := range resp.Kvs[skip:] {
		record, err := decodeExecution(kv.Value)
		if err != nil {
			r.logger.Warn("skipping undecodable execution record", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, record)
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}

func decodeExecution(value []byte) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("failed to decode execution record: %w", err)
	}
	return &record, nil
}
