// Package sqlite stores jobs and their execution history in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                   TEXT PRIMARY KEY,
	name                 TEXT,
	service_id           TEXT NOT NULL,
	program              TEXT,
	status               TEXT NOT NULL,
	next_execution_date  TEXT,
	first_execution_date TEXT,
	insertion_date       TEXT,
	last_execution_date  TEXT,
	repeat_every         TEXT,
	execution_count      INTEGER NOT NULL DEFAULT 0,
	last_failure         TEXT,
	version              INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_next ON jobs (status, next_execution_date);

CREATE TABLE IF NOT EXISTS job_executions (
	id           TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL,
	job_name     TEXT,
	start_time   TEXT NOT NULL,
	end_time     TEXT,
	status       TEXT NOT NULL,
	runs         INTEGER NOT NULL DEFAULT 0,
	job_status   TEXT,
	error        TEXT,
	failure_code INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_job_executions_job ON job_executions (job_id, start_time);
`

// Open opens the SQLite database at path. ":memory:" is accepted.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to ":memory:" would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}

// timeLayout is fixed width so that text comparison in SQL orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString, column, id string) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s for %s: %w", column, id, err)
	}
	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
