package shell

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"job-scheduler/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct{ job *domain.Job }

func (r *stubRunner) SetJob(job *domain.Job) { r.job = job }
func (r *stubRunner) Job() *domain.Job       { return r.job }

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShellProgram_Success(t *testing.T) {
	requireBash(t)

	p := NewShellProgram(`test "$JOB_ID" = "job-7" && test "$JOB_EXECUTION_COUNT" = "1"`, 5*time.Second, testLogger())
	job := domain.NewJob("cleanup", p)
	job.SetID("job-7")

	err := p.Execute(context.Background(), &stubRunner{job: job})
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramTypeShell, p.Descriptor().Type)
}

func TestShellProgram_ExitCode(t *testing.T) {
	requireBash(t)

	p := NewShellProgram("echo failing >&2; exit 3", 5*time.Second, testLogger())
	err := p.Execute(context.Background(), &stubRunner{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code())
	assert.Contains(t, exitErr.Output, "failing")

	rec := domain.NewFailureRecord(err, time.Now())
	assert.Equal(t, 3, rec.Code)
}

func TestShellProgram_Timeout(t *testing.T) {
	requireBash(t)

	p := NewShellProgram("sleep 5", 50*time.Millisecond, testLogger())
	err := p.Execute(context.Background(), nil)
	require.Error(t, err)
}
