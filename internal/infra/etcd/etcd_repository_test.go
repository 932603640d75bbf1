package etcd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"job-scheduler/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// newTestClient connects to the etcd cluster named by ETCD_TEST_ENDPOINTS.
func newTestClient(t *testing.T) *clientv3.Client {
	t.Helper()
	endpoints := os.Getenv("ETCD_TEST_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_TEST_ENDPOINTS not set")
	}
	cli, err := NewClient(context.Background(), strings.Split(endpoints, ","), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })
	return cli
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEtcdJobRepository_Versioning(t *testing.T) {
	ctx := context.Background()
	repo := NewEtcdJobRepository(newTestClient(t), testLogger())

	rec := &domain.JobRecord{
		ID:        uuid.New().String(),
		ServiceID: "reports.render",
		Program:   &domain.ProgramDescriptor{Type: domain.ProgramTypeService},
		Status:    domain.StatusWaiting,
	}
	t.Cleanup(func() { repo.Delete(context.Background(), rec.ID) })

	require.NoError(t, repo.Save(ctx, rec))
	assert.NotZero(t, rec.Version)

	stale, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Version, stale.Version)

	rec.Status = domain.StatusPending
	require.NoError(t, repo.Save(ctx, rec))

	stale.Status = domain.StatusPending
	assert.True(t, errors.Is(repo.Save(ctx, stale), domain.ErrConcurrentUpdate))

	again := *rec
	again.Version = 0
	assert.True(t, errors.Is(repo.Save(ctx, &again), domain.ErrConcurrentUpdate))

	require.NoError(t, repo.Delete(ctx, rec.ID))
	_, err = repo.Get(ctx, rec.ID)
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))
}

func TestEtcdExecutionRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	cli := newTestClient(t)
	repo := NewEtcdExecutionRepository(cli, testLogger())

	jobID := uuid.New().String()
	t.Cleanup(func() {
		cli.Delete(context.Background(), historyPrefix(jobID), clientv3.WithPrefix())
	})

	start := time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, &domain.ExecutionRecord{
			ID: id, JobID: jobID, StartTime: start, Status: domain.ExecutionStatusSuccess,
		}))
	}

	page, err := repo.ListByJobID(ctx, jobID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = repo.ListByJobID(ctx, jobID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	page, err = repo.ListByJobID(ctx, jobID, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = repo.Get(ctx, jobID, "missing")
	assert.True(t, errors.Is(err, domain.ErrExecutionNotFound))
}

func TestHistoryKeys(t *testing.T) {
	assert.Equal(t, "/scheduler/history/job-1/exec-1", historyKey("job-1", "exec-1"))
	assert.Equal(t, "/scheduler/history/job-1/", historyPrefix("job-1"))
	assert.True(t, strings.HasPrefix(historyKey("job-1", "x"), historyPrefix("job-1")))
	assert.False(t, strings.HasPrefix(historyKey("job-10", "x"), historyPrefix("job-1")))
}

func TestDecodeExecution(t *testing.T) {
	rec, err := decodeExecution([]byte(`{"id":"e1","job_id":"j1","status":"skipped","runs":0}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSkipped, rec.Status)

	_, err = decodeExecution([]byte(`{`))
	assert.Error(t, err)
}
