package http

import (
	"net/http"
	"time"

	"job-scheduler/internal/domain"
	"job-scheduler/internal/usecase"
)

// ProgramRequest is the DTO for the program a job runs.
type ProgramRequest struct {
	Type    string   `json:"type" validate:"required,oneof=http shell service"`
	URL     string   `json:"url" validate:"required_if=Type http"`
	Method  string   `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Command string   `json:"command" validate:"required_if=Type shell"`
	Args    []string `json:"args"`
}

// CreateJobRequest is the Data Transfer Object for creating a job.
type CreateJobRequest struct {
	Name        string         `json:"name" validate:"max=128"`
	ServiceID   string         `json:"service_id" validate:"required,min=1,max=256"`
	Program     ProgramRequest `json:"program"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	ScheduledIn string         `json:"scheduled_in,omitempty" validate:"omitempty,isoduration,excluded_with=ScheduledAt"`
	RepeatEvery string         `json:"repeat_every,omitempty" validate:"omitempty,isoduration"`
}

// ToInput converts a CreateJobRequest DTO to the service input.
func (r *CreateJobRequest) ToInput() usecase.CreateJobInput {
	desc := &domain.ProgramDescriptor{Type: domain.ProgramType(r.Program.Type)}
	switch desc.Type {
	case domain.ProgramTypeHTTP:
		desc.URL = r.Program.URL
		desc.Method = r.Program.Method
		if desc.Method == "" {
			desc.Method = http.MethodGet
		}
	case domain.ProgramTypeShell:
		desc.Command = r.Program.Command
	case domain.ProgramTypeService:
		desc.Args = r.Program.Args
	}

	return usecase.CreateJobInput{
		Name:        r.Name,
		ServiceID:   r.ServiceID,
		Program:     desc,
		ScheduledAt: r.ScheduledAt,
		ScheduledIn: r.ScheduledIn,
		RepeatEvery: r.RepeatEvery,
	}
}

// ScheduleRequest moves the first run of a job.
type ScheduleRequest struct {
	At time.Time `json:"at" validate:"required"`
}

// RepeatRequest makes a job recurring.
type RepeatRequest struct {
	Every string `json:"every" validate:"required,isoduration"`
}

// JobResponse is the JSON view of a job.
type JobResponse struct {
	*domain.JobRecord
	Version int64 `json:"version"`
}

func newJobResponse(rec *domain.JobRecord) JobResponse {
	return JobResponse{JobRecord: rec, Version: rec.Version}
}
