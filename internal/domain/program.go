// internal/domain/program.go
package domain

import "context"

// ProgramType defines the kind of work a program performs.
type ProgramType string

const (
	ProgramTypeHTTP    ProgramType = "http"
	ProgramTypeShell   ProgramType = "shell"
	ProgramTypeService ProgramType = "service"
)

// Program is the work body a job delegates execution to.
type Program interface {
	Execute(ctx context.Context, runner Runner) error
}

// Runner is the execution context handed to a program. The job sets itself
// on the runner before every program invocation.
type Runner interface {
	SetJob(job *Job)
	Job() *Job
}

// DescribedProgram is implemented by programs that can be persisted as a descriptor.
type DescribedProgram interface {
	Program
	Descriptor() ProgramDescriptor
}

// ProgramDescriptor is the persisted form of a program.
type ProgramDescriptor struct {
	Type    ProgramType `json:"type"`
	URL     string      `json:"url,omitempty"`     // For HTTP programs
	Method  string      `json:"method,omitempty"`  // For HTTP programs
	Command string      `json:"command,omitempty"` // For shell programs
	Args    []string    `json:"args,omitempty"`    // For service programs
}

// DescribeProgram returns the descriptor of p, or nil if p cannot be described.
func DescribeProgram(p Program) *ProgramDescriptor {
	dp, ok := p.(DescribedProgram)
	if !ok {
		return nil
	}
	desc := dp.Descriptor()
	return &desc
}
