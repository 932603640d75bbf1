// internal/domain/failure.go
package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Coder is implemented by program errors that carry a numeric failure code,
// such as an HTTP status or a process exit status.
type Coder interface {
	Code() int
}

// FailureRecord captures the outcome of a failed program run.
type FailureRecord struct {
	Message      string    `json:"message"`
	Code         int       `json:"code"`
	CauseMessage string    `json:"cause,omitempty"`
	Details      []string  `json:"details,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`

	// Cause is the innermost error of the chain. It is not persisted.
	Cause error `json:"-"`
}

// NewFailureRecord builds a FailureRecord from a program error.
func NewFailureRecord(err error, at time.Time) *FailureRecord {
	if err == nil {
		return nil
	}

	rec := &FailureRecord{
		Message:    err.Error(),
		OccurredAt: at,
		Cause:      errors.UnwrapAll(err),
		Details:    errors.GetAllDetails(err),
	}
	if rec.Cause != nil && rec.Cause.Error() != rec.Message {
		rec.CauseMessage = rec.Cause.Error()
	}

	var coder Coder
	if errors.As(err, &coder) {
		rec.Code = coder.Code()
	}
	return rec
}

// Unwrap exposes the original cause so a FailureRecord can be inspected with errors.Is.
func (r *FailureRecord) Unwrap() error {
	return r.Cause
}

func (r *FailureRecord) Error() string {
	return r.Message
}
