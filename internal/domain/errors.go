// internal/domain/errors.go
package domain

import "github.com/cockroachdb/errors"

var (
	// ErrLocked is returned when a job is mutated or executed while a run is in flight.
	ErrLocked = errors.New("job is locked")
	// ErrNotPending is returned by Execute when the job status is not pending.
	ErrNotPending = errors.New("job is not pending")
	// ErrNotWaiting is returned by PrepareForExecution when the job status is not waiting.
	ErrNotWaiting = errors.New("job is not waiting")
	// ErrNotFailed is returned by Reset when the job status is not failed.
	ErrNotFailed = errors.New("job is not failed")
	// ErrAlreadyStarted is returned when the first execution date is rewritten after a run.
	ErrAlreadyStarted = errors.New("job has already been executed")
	// ErrInvalidIntervalSpec is returned for unparseable ISO-8601 duration strings.
	ErrInvalidIntervalSpec = errors.New("invalid interval specification")
	// ErrInconsistentState is returned when a pending one-shot job that already ran
	// is executed before its next execution date.
	ErrInconsistentState = errors.New("job is in an inconsistent state")

	// ErrJobNotFound is a sentinel error returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrExecutionNotFound is returned when an execution record is not found.
	ErrExecutionNotFound = errors.New("execution record not found")
	// ErrConcurrentUpdate is returned by repositories when the stored version
	// no longer matches the version the caller loaded.
	ErrConcurrentUpdate = errors.New("job was modified concurrently")

	// ErrUnknownProgram is returned when a program descriptor has an unsupported type.
	ErrUnknownProgram = errors.New("unknown program type")
	// ErrUnknownService is returned when a service id has no registered handler.
	ErrUnknownService = errors.New("unknown service")
)
