package domain

import "context"

// JobRepository defines the interface for persisting and retrieving job records.
//
// Save inserts a record whose Version is zero and otherwise replaces the stored
// record only if its version still equals rec.Version, returning
// ErrConcurrentUpdate when it does not. On success rec.Version holds the new version.
type JobRepository interface {
	Save(ctx context.Context, rec *JobRecord) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*JobRecord, error)
	List(ctx context.Context) ([]*JobRecord, error)
}
