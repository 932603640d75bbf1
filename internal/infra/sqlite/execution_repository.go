package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"job-scheduler/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const executionColumns = `id, job_id, job_name, start_time, end_time, status, runs, job_status, error, failure_code`

type executionRepository struct {
	db     *sql.DB
	logger *slog.Logger
	tracer trace.Tracer
}

// NewExecutionRepository creates an execution history repository backed by SQLite.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) domain.ExecutionRepository {
	return &executionRepository{
		db:     db,
		logger: logger,
		tracer: otel.Tracer("job-scheduler-sqlite-execution-repo"),
	}
}

// Save inserts the record or replaces a previous save of the same execution.
func (r *executionRepository) Save(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.SaveExecution")
	defer span.End()

	if err := record.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid execution record")
		return err
	}
	span.SetAttributes(
		attribute.String("execution.id", record.ID),
		attribute.String("job.id", record.JobID),
	)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			status = excluded.status,
			runs = excluded.runs,
			job_status = excluded.job_status,
			error = excluded.error,
			failure_code = excluded.failure_code`,
		record.ID, record.JobID, nullString(record.JobName),
		formatTime(&record.StartTime), formatTime(&record.EndTime),
		string(record.Status), record.Runs, nullString(string(record.JobStatus)),
		nullString(record.Error), record.FailureCode,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save execution record")
		return fmt.Errorf("failed to save execution record %s: %w", record.ID, err)
	}
	return nil
}

// ListByJobID returns a page of execution records, newest first.
func (r *executionRepository) ListByJobID(ctx context.Context, jobID string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.ListExecutions")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM job_executions
		WHERE job_id = ?
		ORDER BY start_time DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		jobID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list execution records")
		return nil, fmt.Errorf("failed to list execution records for job %s: %w", jobID, err)
	}
	defer rows.Close()

	records := make([]*domain.ExecutionRecord, 0, pageSize)
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			r.logger.Warn("failed to scan execution record", "job_id", jobID, "error", err)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution records: %w", err)
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}

func (r *executionRepository) Get(ctx context.Context, jobID, executionID string) (*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.GetExecution")
	defer span.End()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM job_executions WHERE job_id = ? AND id = ?`,
		jobID, executionID)
	record, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("execution record %s/%s: %w", jobID, executionID, domain.ErrExecutionNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get execution record")
		return nil, fmt.Errorf("failed to get execution record %s/%s: %w", jobID, executionID, err)
	}
	return record, nil
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	var status string
	var jobName, jobStatus, errMsg, start, end sql.NullString

	err := row.Scan(
		&record.ID, &record.JobID, &jobName, &start, &end, &status,
		&record.Runs, &jobStatus, &errMsg, &record.FailureCode,
	)
	if err != nil {
		return nil, err
	}

	record.JobName = jobName.String
	record.Status = domain.ExecutionStatus(status)
	record.JobStatus = domain.JobStatus(jobStatus.String)
	record.Error = errMsg.String

	startTime, err := parseTime(start, "start_time", record.ID)
	if err != nil {
		return nil, err
	}
	if startTime != nil {
		record.StartTime = *startTime
	}
	endTime, err := parseTime(end, "end_time", record.ID)
	if err != nil {
		return nil, err
	}
	if endTime != nil {
		record.EndTime = *endTime
	}
	return &record, nil
}
