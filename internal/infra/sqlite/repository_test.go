package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"job-scheduler/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func sampleRecord() *domain.JobRecord {
	next := t0.Add(time.Hour)
	inserted := t0
	return &domain.JobRecord{
		ID:                 "job-1",
		Name:               "nightly-report",
		ServiceID:          "reports.render",
		Program:            &domain.ProgramDescriptor{Type: domain.ProgramTypeService, Args: []string{"pdf"}},
		Status:             domain.StatusWaiting,
		NextExecutionDate:  &next,
		FirstExecutionDate: &next,
		InsertionDate:      &inserted,
		RepeatEvery:        "PT1H",
	}
}

func TestJobRepository_SaveGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t), testLogger())

	rec := sampleRecord()
	require.NoError(t, repo.Save(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "nightly-report", got.Name)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.Equal(t, "PT1H", got.RepeatEvery)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.NextExecutionDate)
	assert.True(t, got.NextExecutionDate.Equal(t0.Add(time.Hour)))
	assert.Nil(t, got.LastExecutionDate)
	assert.Equal(t, rec.Program, got.Program)
	assert.Nil(t, got.LastFailure)
}

func TestJobRepository_VersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t), testLogger())

	require.NoError(t, repo.Save(ctx, sampleRecord()))

	first, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)

	first.Status = domain.StatusPending
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.StatusPending
	err = repo.Save(ctx, second)
	assert.True(t, errors.Is(err, domain.ErrConcurrentUpdate))

	// A second insert of the same id is also a conflict.
	err = repo.Save(ctx, sampleRecord())
	assert.True(t, errors.Is(err, domain.ErrConcurrentUpdate))
}

func TestJobRepository_RoundTripsFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t), testLogger())

	rec := sampleRecord()
	rec.Status = domain.StatusFailed
	rec.ExecutionCount = 3
	last := t0.Add(2 * time.Hour)
	rec.LastExecutionDate = &last
	rec.LastFailure = &domain.FailureRecord{Message: "upstream returned 503", Code: 503, OccurredAt: last}
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ExecutionCount)
	require.NotNil(t, got.LastFailure)
	assert.Equal(t, 503, got.LastFailure.Code)
	assert.Equal(t, "upstream returned 503", got.LastFailure.Message)

	job, err := domain.RestoreJob(got, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status())
	assert.Equal(t, int64(1), job.Version())
}

func TestJobRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t), testLogger())

	later := sampleRecord()
	later.ID = "job-later"
	next := t0.Add(5 * time.Hour)
	later.NextExecutionDate = &next
	require.NoError(t, repo.Save(ctx, later))

	done := sampleRecord()
	done.ID = "job-done"
	done.Status = domain.StatusTerminated
	done.NextExecutionDate = nil
	require.NoError(t, repo.Save(ctx, done))

	require.NoError(t, repo.Save(ctx, sampleRecord()))

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, "job-later", jobs[1].ID)
	assert.Equal(t, "job-done", jobs[2].ID)

	require.NoError(t, repo.Delete(ctx, "job-done"))
	err = repo.Delete(ctx, "job-done")
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))

	_, err = repo.Get(ctx, "job-done")
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))
}

func TestJobRepository_UpdateConflictFromDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs SET").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db, testLogger())
	rec := sampleRecord()
	rec.Version = 7

	err = repo.Save(context.Background(), rec)
	assert.True(t, errors.Is(err, domain.ErrConcurrentUpdate))
	assert.Equal(t, int64(7), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnError(errors.New("disk I/O error"))

	repo := NewJobRepository(db, testLogger())
	_, err = repo.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrJobNotFound))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_SaveListGet(t *testing.T) {
	ctx := context.Background()
	repo := NewExecutionRepository(setupTestDB(t), testLogger())

	for i, status := range []domain.ExecutionStatus{
		domain.ExecutionStatusSuccess,
		domain.ExecutionStatusFailed,
		domain.ExecutionStatusSkipped,
	} {
		start := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Save(ctx, &domain.ExecutionRecord{
			ID:        "exec-" + string(rune('a'+i)),
			JobID:     "job-1",
			StartTime: start,
			EndTime:   start.Add(time.Second),
			Status:    status,
			Runs:      i,
			JobStatus: domain.StatusWaiting,
		}))
	}
	require.NoError(t, repo.Save(ctx, &domain.ExecutionRecord{
		ID: "other", JobID: "job-2", StartTime: t0, Status: domain.ExecutionStatusSuccess,
	}))

	page1, err := repo.ListByJobID(ctx, "job-1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "exec-c", page1[0].ID)
	assert.Equal(t, "exec-b", page1[1].ID)

	page2, err := repo.ListByJobID(ctx, "job-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "exec-a", page2[0].ID)

	got, err := repo.Get(ctx, "job-1", "exec-b")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, 1, got.Runs)
	assert.True(t, got.EndTime.Equal(t0.Add(time.Hour+time.Second)))

	_, err = repo.Get(ctx, "job-2", "exec-b")
	assert.True(t, errors.Is(err, domain.ErrExecutionNotFound))
}

func TestExecutionRepository_SaveUpdatesRunningRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewExecutionRepository(setupTestDB(t), testLogger())

	rec := &domain.ExecutionRecord{ID: "exec-1", JobID: "job-1", StartTime: t0, Status: domain.ExecutionStatusRunning}
	require.NoError(t, repo.Save(ctx, rec))

	rec.Status = domain.ExecutionStatusFailed
	rec.EndTime = t0.Add(time.Minute)
	rec.Error = "boom"
	rec.FailureCode = 2
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, "job-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 2, got.FailureCode)

	err = repo.Save(ctx, &domain.ExecutionRecord{ID: "exec-2", JobID: "job-1"})
	assert.Error(t, err)
}

func TestJobRepository_ListOrdersSubsecondDates(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t), testLogger())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id, next := range map[string]time.Time{
		"job-whole":  base,
		"job-half":   base.Add(500 * time.Millisecond),
		"job-second": base.Add(time.Second),
	} {
		rec := sampleRecord()
		rec.ID = id
		rec.NextExecutionDate = &next
		require.NoError(t, repo.Save(ctx, rec))
	}

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-whole", jobs[0].ID)
	assert.Equal(t, "job-half", jobs[1].ID)
	assert.Equal(t, "job-second", jobs[2].ID)
	assert.True(t, jobs[1].NextExecutionDate.Equal(base.Add(500*time.Millisecond)))
}

func TestFormatTime_FixedWidth(t *testing.T) {
	whole := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	a := formatTime(&whole).(string)
	b := formatTime(&half).(string)
	assert.Equal(t, "2024-01-01T00:00:00.000000000Z", a)
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)

	local := whole.In(time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, a, formatTime(&local))
	assert.Nil(t, formatTime(nil))
}
