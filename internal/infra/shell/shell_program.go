// internal/infra/shell/shell_program.go
package shell

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"job-scheduler/internal/domain"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExitError is returned when the command exits with a non-zero status.
type ExitError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("shell command failed: %v", e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Code returns the process exit status, recorded as the job failure code.
func (e *ExitError) Code() int { return e.ExitCode }

// shellProgram implements domain.Program for shell commands.
type shellProgram struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewShellProgram creates a program that runs command with bash -c.
func NewShellProgram(command string, timeout time.Duration, logger *slog.Logger) domain.DescribedProgram {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &shellProgram{
		command: command,
		timeout: timeout,
		logger:  logger.With("program_type", "shell"),
		tracer:  otel.Tracer("job-scheduler-shell-program"),
	}
}

func (p *shellProgram) Descriptor() domain.ProgramDescriptor {
	return domain.ProgramDescriptor{
		Type:    domain.ProgramTypeShell,
		Command: p.command,
	}
}

// Execute runs the shell command. The job id and the number of the run being
// attempted are exported as JOB_ID and JOB_EXECUTION_COUNT.
func (p *shellProgram) Execute(ctx context.Context, runner domain.Runner) error {
	ctx, span := p.tracer.Start(ctx, "program.shell.Execute",
		trace.WithAttributes(attribute.String("job.command", p.command)))
	defer span.End()

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", p.command)
	cmd.Env = os.Environ()

	logger := p.logger
	if runner != nil && runner.Job() != nil {
		job := runner.Job()
		cmd.Env = append(cmd.Env,
			"JOB_ID="+job.ID(),
			"JOB_EXECUTION_COUNT="+strconv.Itoa(job.ExecutionCount()+1),
		)
		logger = logger.With("job_id", job.ID())
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("executing shell command", "command", p.command)
	err := cmd.Run()
	output := stdout.String()
	errOutput := stderr.String()

	if output != "" {
		span.SetAttributes(attribute.String("shell.stdout", output))
	}
	if errOutput != "" {
		span.SetAttributes(attribute.String("shell.stderr", errOutput))
		// Prepend stderr to the main output for visibility
		if output != "" {
			output = fmt.Sprintf("[STDERR]:\n%s\n[STDOUT]:\n%s", errOutput, output)
		} else {
			output = fmt.Sprintf("[STDERR]:\n%s", errOutput)
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, "shell command failed")
		span.RecordError(err)

		exitErr := &ExitError{ExitCode: -1, Output: output, Err: err}
		var procErr *exec.ExitError
		if errors.As(err, &procErr) {
			exitErr.ExitCode = procErr.ExitCode()
		}
		if output == "" {
			return exitErr
		}
		return errors.WithDetail(exitErr, output)
	}

	logger.Info("shell command executed successfully")
	return nil
}
