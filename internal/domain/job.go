package domain

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// JobStatus defines the execution status of a job.
type JobStatus string

const (
	StatusWaiting    JobStatus = "waiting"
	StatusPending    JobStatus = "pending"
	StatusTerminated JobStatus = "terminated"
	StatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusPending, StatusTerminated, StatusFailed:
		return true
	}
	return false
}

// Job is a unit of work that runs once or repeats on a fixed interval.
//
// A job moves waiting -> pending through PrepareForExecution, and Execute then
// decides whether to run the program (possibly several times to catch up on
// missed ticks), park the job as waiting, terminate it or record a failure.
// Zero time values stand for unset dates.
type Job struct {
	mu    sync.Mutex
	clock Clock

	id        string
	name      string
	serviceID string
	program   Program
	status    JobStatus

	nextExecutionDate  time.Time
	firstExecutionDate time.Time
	insertionDate      time.Time
	lastExecutionDate  time.Time

	repeatEvery    string
	interval       Interval
	executionCount int
	lastFailure    *FailureRecord

	locked  bool
	version int64
}

// Option configures a Job created with NewJob.
type Option func(*Job)

// WithClock sets the clock used for every "now" read.
func WithClock(c Clock) Option {
	return func(j *Job) {
		if c != nil {
			j.clock = c
		}
	}
}

// WithName sets the human readable job name.
func WithName(name string) Option {
	return func(j *Job) { j.name = name }
}

// NewJob creates a waiting job that has never run.
func NewJob(serviceID string, program Program, opts ...Option) *Job {
	j := &Job{
		clock:     SystemClock{},
		serviceID: serviceID,
		program:   program,
		status:    StatusWaiting,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SetClock replaces the job's clock.
func (j *Job) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	j.mu.Lock()
	j.clock = c
	j.mu.Unlock()
}

func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// SetID is used by storage to assign the job identity.
func (j *Job) SetID(id string) {
	j.mu.Lock()
	j.id = id
	j.mu.Unlock()
}

func (j *Job) Name() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.name
}

func (j *Job) SetName(name string) {
	j.mu.Lock()
	j.name = name
	j.mu.Unlock()
}

func (j *Job) ServiceID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.serviceID
}

func (j *Job) SetServiceID(serviceID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.serviceID = serviceID
	return nil
}

func (j *Job) Program() Program {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.program
}

func (j *Job) SetProgram(p Program) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.program = p
	return nil
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// NextExecutionDate is zero only once the job has terminated.
func (j *Job) NextExecutionDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextExecutionDate
}

func (j *Job) FirstExecutionDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.firstExecutionDate
}

func (j *Job) InsertionDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.insertionDate
}

func (j *Job) LastExecutionDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastExecutionDate
}

// RepeatEvery returns the interval specification, or "" for a one-shot job.
func (j *Job) RepeatEvery() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.repeatEvery
}

func (j *Job) ExecutionCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.executionCount
}

func (j *Job) LastFailure() *FailureRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastFailure
}

// Version is the storage revision the job was loaded at.
func (j *Job) Version() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.version
}

// SetVersion records the revision assigned by the repository after a save.
func (j *Job) SetVersion(v int64) {
	j.mu.Lock()
	j.version = v
	j.mu.Unlock()
}

func (j *Job) IsLocked() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.locked
}

// Lock marks the job as in flight. It fails with ErrLocked if it already is.
func (j *Job) Lock() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.locked = true
	return nil
}

func (j *Job) Unlock() {
	j.mu.Lock()
	j.locked = false
	j.mu.Unlock()
}

// CheckUnlocked returns ErrLocked while a run is in progress.
func (j *Job) CheckUnlocked() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checkUnlocked()
}

func (j *Job) checkUnlocked() error {
	if j.locked {
		return errors.Wrapf(ErrLocked, "job %s", j.label())
	}
	return nil
}

func (j *Job) label() string {
	if j.id != "" {
		return j.id
	}
	if j.name != "" {
		return j.name
	}
	return j.serviceID
}

// SetScheduledIn schedules the first run at now + spec.
func (j *Job) SetScheduledIn(spec string) error {
	iv, err := ParseInterval(spec)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.nextExecutionDate = iv.AddTo(j.clock.Now())
	j.firstExecutionDate = j.nextExecutionDate
	return nil
}

// SetScheduledAt schedules the first run at t. The first run date cannot be
// rewritten once the job has been executed.
func (j *Job) SetScheduledAt(t time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	if j.executionCount > 0 {
		return errors.Wrapf(ErrAlreadyStarted, "job %s ran %d times", j.label(), j.executionCount)
	}
	j.nextExecutionDate = t
	j.firstExecutionDate = t
	return nil
}

// SetRepeatEvery makes the job recurring. Zero-length intervals are rejected.
func (j *Job) SetRepeatEvery(spec string) error {
	iv, err := ParseInterval(spec)
	if err != nil {
		return err
	}
	if iv.IsZero() {
		return errors.Wrapf(ErrInvalidIntervalSpec, "%q: repeat interval must be positive", spec)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.repeatEvery = spec
	j.interval = iv
	return nil
}

// EndRepetition turns a recurring job into one that terminates after its next run.
func (j *Job) EndRepetition() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	j.repeatEvery = ""
	j.interval = Interval{}
	return nil
}

// MarkRegistered stamps the insertion date on first registration and defaults
// the schedule to that instant when none was set.
func (j *Job) MarkRegistered() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.insertionDate.IsZero() {
		return
	}
	j.insertionDate = j.clock.Now()
	if j.firstExecutionDate.IsZero() {
		j.firstExecutionDate = j.insertionDate
		j.nextExecutionDate = j.insertionDate
	}
}

// PrepareForExecution moves a waiting job to pending.
func (j *Job) PrepareForExecution() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	if j.status != StatusWaiting {
		return errors.Wrapf(ErrNotWaiting, "job %s is %s", j.label(), j.status)
	}
	j.status = StatusPending
	j.lastExecutionDate = j.clock.Now()
	return nil
}

// Reset puts a failed job back to waiting so it can be dispatched again. It
// also releases a pending one-shot job left behind by ErrInconsistentState.
// A one-shot job that already ran is re-armed to now when its next execution
// date is still in the future.
func (j *Job) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkUnlocked(); err != nil {
		return err
	}
	now := j.clock.Now()
	stranded := j.repeatEvery == "" && j.executionCount > 0 && j.nextExecutionDate.After(now)
	if j.status != StatusFailed && !(j.status == StatusPending && stranded) {
		return errors.Wrapf(ErrNotFailed, "job %s is %s", j.label(), j.status)
	}
	if stranded {
		j.nextExecutionDate = now
	}
	j.status = StatusWaiting
	return nil
}

// Execute runs a pending job.
//
// A due recurring job runs, advances its next execution date by one interval
// and loops until that date is in the future, then parks as waiting. A one-shot
// job runs once and terminates. A failing program leaves the job failed and its
// error is returned. The job is locked for the whole call.
func (j *Job) Execute(ctx context.Context, runner Runner) error {
	j.mu.Lock()
	if j.status != StatusPending {
		defer j.mu.Unlock()
		return errors.Wrapf(ErrNotPending, "job %s is %s", j.label(), j.status)
	}
	if err := j.checkUnlocked(); err != nil {
		j.mu.Unlock()
		return err
	}
	j.locked = true
	j.mu.Unlock()
	defer j.Unlock()

	for {
		j.mu.Lock()
		now := j.clock.Now()
		recurring := j.repeatEvery != ""
		if j.nextExecutionDate.After(now) {
			if recurring {
				j.status = StatusWaiting
				j.mu.Unlock()
				return nil
			}
			if j.executionCount > 0 {
				err := errors.Wrapf(ErrInconsistentState,
					"one-shot job %s already ran %d times and is not due until %s",
					j.label(), j.executionCount, j.nextExecutionDate.Format(time.RFC3339))
				j.mu.Unlock()
				return err
			}
		}
		j.lastExecutionDate = now
		program := j.program
		label := j.label()
		j.mu.Unlock()

		if runner != nil {
			runner.SetJob(j)
		}
		runErr := runProgram(ctx, program, runner)

		j.mu.Lock()
		j.executionCount++
		if runErr != nil {
			j.status = StatusFailed
			j.lastFailure = NewFailureRecord(runErr, j.clock.Now())
			j.mu.Unlock()
			return errors.Wrapf(runErr, "job %s: program failed", label)
		}

		if j.repeatEvery == "" {
			j.status = StatusTerminated
			j.nextExecutionDate = time.Time{}
			j.mu.Unlock()
			return nil
		}

		base := j.nextExecutionDate
		if base.IsZero() {
			base = now
		}
		j.nextExecutionDate = j.interval.AddTo(base)
		j.mu.Unlock()
	}
}

func runProgram(ctx context.Context, program Program, runner Runner) (err error) {
	if program == nil {
		return errors.New("job has no program")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("program panicked: %v", r)
		}
	}()
	return program.Execute(ctx, runner)
}
