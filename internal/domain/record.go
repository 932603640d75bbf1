// internal/domain/record.go
package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// JobRecord is the persisted form of a Job.
type JobRecord struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name,omitempty"`
	ServiceID          string             `json:"service_id"`
	Program            *ProgramDescriptor `json:"program,omitempty"`
	Status             JobStatus          `json:"status"`
	NextExecutionDate  *time.Time         `json:"next_execution_date,omitempty"`
	FirstExecutionDate *time.Time         `json:"first_execution_date,omitempty"`
	InsertionDate      *time.Time         `json:"insertion_date,omitempty"`
	LastExecutionDate  *time.Time         `json:"last_execution_date,omitempty"`
	RepeatEvery        string             `json:"repeat_every,omitempty"`
	ExecutionCount     int                `json:"execution_count"`
	LastFailure        *FailureRecord     `json:"last_failure,omitempty"`

	// Version is owned by the repository and is not serialized with the record body.
	Version int64 `json:"-"`
}

// Snapshot returns the persisted form of the job.
func (j *Job) Snapshot() *JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := &JobRecord{
		ID:                 j.id,
		Name:               j.name,
		ServiceID:          j.serviceID,
		Program:            DescribeProgram(j.program),
		Status:             j.status,
		NextExecutionDate:  timePtr(j.nextExecutionDate),
		FirstExecutionDate: timePtr(j.firstExecutionDate),
		InsertionDate:      timePtr(j.insertionDate),
		LastExecutionDate:  timePtr(j.lastExecutionDate),
		RepeatEvery:        j.repeatEvery,
		ExecutionCount:     j.executionCount,
		Version:            j.version,
	}
	if j.lastFailure != nil {
		failure := *j.lastFailure
		rec.LastFailure = &failure
	}
	return rec
}

// RestoreJob rebuilds a job from its persisted form. The program is resolved
// by the caller from rec.Program.
func RestoreJob(rec *JobRecord, program Program, opts ...Option) (*Job, error) {
	if rec == nil {
		return nil, errors.New("nil job record")
	}
	if !rec.Status.Valid() {
		return nil, errors.Newf("job %s has invalid status %q", rec.ID, rec.Status)
	}
	if rec.ExecutionCount < 0 {
		return nil, errors.Newf("job %s has negative execution count", rec.ID)
	}

	j := NewJob(rec.ServiceID, program, opts...)
	j.id = rec.ID
	j.name = rec.Name
	j.status = rec.Status
	j.nextExecutionDate = timeValue(rec.NextExecutionDate)
	j.firstExecutionDate = timeValue(rec.FirstExecutionDate)
	j.insertionDate = timeValue(rec.InsertionDate)
	j.lastExecutionDate = timeValue(rec.LastExecutionDate)
	j.executionCount = rec.ExecutionCount
	j.version = rec.Version
	if rec.LastFailure != nil {
		failure := *rec.LastFailure
		j.lastFailure = &failure
	}

	if rec.RepeatEvery != "" {
		iv, err := ParseInterval(rec.RepeatEvery)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s", rec.ID)
		}
		j.repeatEvery = rec.RepeatEvery
		j.interval = iv
	}
	return j, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
