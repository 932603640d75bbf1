// Package program builds the work bodies jobs delegate to and the runner
// context they execute in.
package program

import (
	"log/slog"
	"sync"

	"job-scheduler/internal/domain"
)

// Runner is the execution context handed to programs. It carries a
// back-reference to the job being executed.
type Runner struct {
	mu     sync.RWMutex
	job    *domain.Job
	logger *slog.Logger
}

// NewRunner creates a runner that logs with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

func (r *Runner) SetJob(job *domain.Job) {
	r.mu.Lock()
	r.job = job
	r.mu.Unlock()
}

func (r *Runner) Job() *domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.job
}

// Logger returns a logger scoped to the current job.
func (r *Runner) Logger() *slog.Logger {
	job := r.Job()
	if job == nil {
		return r.logger
	}
	return r.logger.With("job_id", job.ID(), "service_id", job.ServiceID())
}
