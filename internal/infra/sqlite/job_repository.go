package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"job-scheduler/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const jobColumns = `id, name, service_id, program, status,
	next_execution_date, first_execution_date, insertion_date, last_execution_date,
	repeat_every, execution_count, last_failure, version`

type jobRepository struct {
	db     *sql.DB
	logger *slog.Logger
	tracer trace.Tracer
}

// NewJobRepository creates a job repository backed by SQLite. The version
// column is incremented on every successful save.
func NewJobRepository(db *sql.DB, logger *slog.Logger) domain.JobRepository {
	return &jobRepository{
		db:     db,
		logger: logger,
		tracer: otel.Tracer("job-scheduler-sqlite-repo"),
	}
}

func (r *jobRepository) Save(ctx context.Context, rec *domain.JobRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.Save")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", rec.ID), attribute.Int64("job.version", rec.Version))

	program, failure, err := encodeJSONColumns(rec)
	if err != nil {
		return err
	}

	var res sql.Result
	if rec.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO NOTHING`,
			rec.ID, nullString(rec.Name), rec.ServiceID, program, string(rec.Status),
			formatTime(rec.NextExecutionDate), formatTime(rec.FirstExecutionDate),
			formatTime(rec.InsertionDate), formatTime(rec.LastExecutionDate),
			nullString(rec.RepeatEvery), rec.ExecutionCount, failure,
		)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE jobs SET
				name = ?, service_id = ?, program = ?, status = ?,
				next_execution_date = ?, first_execution_date = ?,
				insertion_date = ?, last_execution_date = ?,
				repeat_every = ?, execution_count = ?, last_failure = ?,
				version = version + 1
			WHERE id = ? AND version = ?`,
			nullString(rec.Name), rec.ServiceID, program, string(rec.Status),
			formatTime(rec.NextExecutionDate), formatTime(rec.FirstExecutionDate),
			formatTime(rec.InsertionDate), formatTime(rec.LastExecutionDate),
			nullString(rec.RepeatEvery), rec.ExecutionCount, failure,
			rec.ID, rec.Version,
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job")
		return fmt.Errorf("failed to save job %s: %w", rec.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", rec.ID, err)
	}
	if affected == 0 {
		span.SetStatus(codes.Error, "job version conflict")
		return fmt.Errorf("job %s at version %d: %w", rec.ID, rec.Version, domain.ErrConcurrentUpdate)
	}

	rec.Version++
	return nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job")
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job")
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return rec, nil
}

// List returns all jobs ordered by next execution date, terminated jobs last.
func (r *jobRepository) List(ctx context.Context) ([]*domain.JobRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.List")
	defer span.End()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		ORDER BY next_execution_date IS NULL, next_execution_date ASC, id ASC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs")
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			r.logger.Warn("failed to scan job row", "error", err)
			continue
		}
		jobs = append(jobs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	var status string
	var name, program, repeatEvery, lastFailure sql.NullString
	var next, first, inserted, last sql.NullString

	err := row.Scan(
		&rec.ID, &name, &rec.ServiceID, &program, &status,
		&next, &first, &inserted, &last,
		&repeatEvery, &rec.ExecutionCount, &lastFailure, &rec.Version,
	)
	if err != nil {
		return nil, err
	}

	rec.Name = name.String
	rec.Status = domain.JobStatus(status)
	rec.RepeatEvery = repeatEvery.String

	if rec.NextExecutionDate, err = parseTime(next, "next_execution_date", rec.ID); err != nil {
		return nil, err
	}
	if rec.FirstExecutionDate, err = parseTime(first, "first_execution_date", rec.ID); err != nil {
		return nil, err
	}
	if rec.InsertionDate, err = parseTime(inserted, "insertion_date", rec.ID); err != nil {
		return nil, err
	}
	if rec.LastExecutionDate, err = parseTime(last, "last_execution_date", rec.ID); err != nil {
		return nil, err
	}

	if program.Valid && program.String != "" {
		rec.Program = &domain.ProgramDescriptor{}
		if err := json.Unmarshal([]byte(program.String), rec.Program); err != nil {
			return nil, fmt.Errorf("failed to unmarshal program for %s: %w", rec.ID, err)
		}
	}
	if lastFailure.Valid && lastFailure.String != "" {
		rec.LastFailure = &domain.FailureRecord{}
		if err := json.Unmarshal([]byte(lastFailure.String), rec.LastFailure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last_failure for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func encodeJSONColumns(rec *domain.JobRecord) (program, failure interface{}, err error) {
	if rec.Program != nil {
		b, err := json.Marshal(rec.Program)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal program for %s: %w", rec.ID, err)
		}
		program = string(b)
	}
	if rec.LastFailure != nil {
		b, err := json.Marshal(rec.LastFailure)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal last_failure for %s: %w", rec.ID, err)
		}
		failure = string(b)
	}
	return program, failure, nil
}
