package usecase

import (
	"context"
	"log/slog"
	"time"

	"job-scheduler/internal/domain"
	"job-scheduler/internal/metrics"
	"job-scheduler/internal/program"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProgramBuilder rebuilds programs from their persisted descriptors.
type ProgramBuilder interface {
	Build(desc *domain.ProgramDescriptor) (domain.DescribedProgram, error)
	HasService(id string) bool
}

// CreateJobInput describes a job to register. ScheduledAt wins over
// ScheduledIn; with neither the job is due at insertion.
type CreateJobInput struct {
	Name        string
	ServiceID   string
	Program     *domain.ProgramDescriptor
	ScheduledAt *time.Time
	ScheduledIn string
	RepeatEvery string
}

// JobService implements the job operations exposed to operators.
type JobService struct {
	repo     domain.JobRepository
	execRepo domain.ExecutionRepository
	programs ProgramBuilder
	clock    domain.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewJobService creates a new JobService instance.
func NewJobService(repo domain.JobRepository, execRepo domain.ExecutionRepository, programs ProgramBuilder, clock domain.Clock, logger *slog.Logger) *JobService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &JobService{
		repo:     repo,
		execRepo: execRepo,
		programs: programs,
		clock:    clock,
		logger:   logger.With("component", "job-service"),
		tracer:   otel.Tracer("job-scheduler-usecase"),
	}
}

// Create registers a new job and persists it.
func (s *JobService) Create(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, "service.Create")
	defer span.End()

	if in.ServiceID == "" {
		return nil, errors.New("service id cannot be empty")
	}
	prog, err := s.programs.Build(in.Program)
	if err != nil {
		return nil, err
	}
	if in.Program.Type == domain.ProgramTypeService && !s.programs.HasService(in.ServiceID) {
		return nil, errors.Wrapf(domain.ErrUnknownService, "%q", in.ServiceID)
	}

	job := domain.NewJob(in.ServiceID, prog, domain.WithClock(s.clock), domain.WithName(in.Name))
	job.SetID(uuid.New().String())
	span.SetAttributes(attribute.String("job.id", job.ID()), attribute.String("job.service_id", in.ServiceID))

	switch {
	case in.ScheduledAt != nil:
		err = job.SetScheduledAt(*in.ScheduledAt)
	case in.ScheduledIn != "":
		err = job.SetScheduledIn(in.ScheduledIn)
	}
	if err != nil {
		return nil, err
	}
	if in.RepeatEvery != "" {
		if err := job.SetRepeatEvery(in.RepeatEvery); err != nil {
			return nil, err
		}
	}
	job.MarkRegistered()

	if err := s.save(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job to repository")
		return nil, err
	}
	s.logger.Info("job created", "job_id", job.ID(), "job_name", job.Name(), "next_execution_date", job.NextExecutionDate())
	return job, nil
}

// Get loads a job and rebuilds its program.
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, "service.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from repository")
	}
	return job, err
}

// List returns the persisted form of every job.
func (s *JobService) List(ctx context.Context) ([]*domain.JobRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.List")
	defer span.End()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from repository")
	}
	return jobs, err
}

func (s *JobService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from repository")
		return err
	}
	s.logger.Info("job deleted", "job_id", id)
	return nil
}

// ListHistory lists the execution history for a specific job.
func (s *JobService) ListHistory(ctx context.Context, id string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	records, err := s.execRepo.ListByJobID(ctx, id, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list job history from repository")
	}
	return records, err
}

// Reschedule moves the first run of a job that has not executed yet.
func (s *JobService) Reschedule(ctx context.Context, id string, at time.Time) (*domain.Job, error) {
	return s.update(ctx, "service.Reschedule", id, func(job *domain.Job) error {
		return job.SetScheduledAt(at)
	})
}

func (s *JobService) SetRepeatEvery(ctx context.Context, id, spec string) (*domain.Job, error) {
	return s.update(ctx, "service.SetRepeatEvery", id, func(job *domain.Job) error {
		return job.SetRepeatEvery(spec)
	})
}

func (s *JobService) EndRepetition(ctx context.Context, id string) (*domain.Job, error) {
	return s.update(ctx, "service.EndRepetition", id, func(job *domain.Job) error {
		return job.EndRepetition()
	})
}

// Reset returns a failed job to waiting.
func (s *JobService) Reset(ctx context.Context, id string) (*domain.Job, error) {
	return s.update(ctx, "service.Reset", id, func(job *domain.Job) error {
		return job.Reset()
	})
}

// Dispatch claims a waiting job, executes it and persists the outcome along
// with an execution record. The program error, if any, is returned together
// with the record.
func (s *JobService) Dispatch(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, err
	}
	if err := job.PrepareForExecution(); err != nil {
		metrics.JobDispatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := s.save(ctx, job); err != nil {
		metrics.JobDispatchesTotal.WithLabelValues("rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim job")
		return nil, err
	}

	record := &domain.ExecutionRecord{
		ID:        uuid.New().String(),
		JobID:     job.ID(),
		JobName:   job.Name(),
		StartTime: s.clock.Now(),
		Status:    domain.ExecutionStatusRunning,
	}
	logger := s.logger.With("job_id", job.ID(), "execution_id", record.ID)
	if err := s.execRepo.Save(ctx, record); err != nil {
		logger.Error("failed to save running execution record", "error", err)
	}

	before := job.ExecutionCount()
	started := time.Now()
	runErr := job.Execute(ctx, program.NewRunner(logger))
	metrics.JobDispatchDuration.Observe(time.Since(started).Seconds())

	record.EndTime = s.clock.Now()
	record.Runs = job.ExecutionCount() - before
	record.JobStatus = job.Status()
	switch {
	case runErr != nil:
		record.Status = domain.ExecutionStatusFailed
		record.Error = runErr.Error()
		if failure := job.LastFailure(); failure != nil && record.Runs > 0 {
			record.FailureCode = failure.Code
		}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "job execution failed")
		logger.Error("job execution failed", "runs", record.Runs, "error", runErr)
	case record.Runs == 0:
		record.Status = domain.ExecutionStatusSkipped
		logger.Info("job not due, parked", "next_execution_date", job.NextExecutionDate())
	default:
		record.Status = domain.ExecutionStatusSuccess
		logger.Info("job executed", "runs", record.Runs, "status", job.Status())
	}
	s.recordRuns(job, record)

	if err := s.save(ctx, job); err != nil {
		logger.Error("failed to persist job after execution", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist job")
		if runErr != nil {
			return record, errors.CombineErrors(runErr, err)
		}
		return record, err
	}
	if err := s.execRepo.Save(ctx, record); err != nil {
		logger.Error("failed to save execution record", "error", err)
	}
	return record, runErr
}

func (s *JobService) recordRuns(job *domain.Job, record *domain.ExecutionRecord) {
	metrics.JobDispatchesTotal.WithLabelValues(string(record.Status)).Inc()

	name := job.Name()
	if name == "" {
		name = job.ServiceID()
	}
	succeeded := record.Runs
	if record.Status == domain.ExecutionStatusFailed && record.Runs > 0 {
		succeeded--
		metrics.JobProgramRunsTotal.WithLabelValues(name, string(domain.ExecutionStatusFailed)).Inc()
	}
	if succeeded > 0 {
		metrics.JobProgramRunsTotal.WithLabelValues(name, string(domain.ExecutionStatusSuccess)).Add(float64(succeeded))
	}
}

func (s *JobService) update(ctx context.Context, op, id string, mutate func(*domain.Job) error) (*domain.Job, error) {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	if err := s.save(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job to repository")
		return nil, err
	}
	return job, nil
}

func (s *JobService) load(ctx context.Context, id string) (*domain.Job, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prog, err := s.programs.Build(rec.Program)
	if err != nil {
		return nil, errors.Wrapf(err, "job %s", id)
	}
	return domain.RestoreJob(rec, prog, domain.WithClock(s.clock))
}

func (s *JobService) save(ctx context.Context, job *domain.Job) error {
	rec := job.Snapshot()
	if err := s.repo.Save(ctx, rec); err != nil {
		return err
	}
	job.SetVersion(rec.Version)
	return nil
}
