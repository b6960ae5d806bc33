package repository

import (
	"context"
	"errors"

	"github.com/rpattn/obsquery/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// QueryRecordRepository defines the interface for cache record operations.
// Every read through it counts as an access and refreshes updated_at.
type QueryRecordRepository interface {
	TouchByDescription(ctx context.Context, description string) (domain.QueryRecord, error)
	TouchByID(ctx context.Context, id int64) (domain.QueryRecord, error)
	// Create inserts a record unless one with the same description exists.
	// created is false when another writer won; the caller re-reads.
	Create(ctx context.Context, record domain.QueryRecord) (rec domain.QueryRecord, created bool, err error)
	// DeleteStale removes at most limit stale records and reports how many
	// were deleted.
	DeleteStale(ctx context.Context, policy StalePolicy, limit int) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// StalePolicy selects records for garbage collection: never-reused records
// last touched before UnusedBefore, and reused records last touched before
// UsedBefore. Both are unix seconds.
type StalePolicy struct {
	UnusedBefore int64
	UsedBefore   int64
}

// EntityRepository defines the interface for entity lookups and loads.
type EntityRepository interface {
	// Lookup resolves a free-text reference to ids, ascending.
	Lookup(ctx context.Context, entityType domain.EntityType, value string) ([]int64, error)
	// GetByIDs loads entities in the order of ids, skipping ids that no
	// longer exist.
	GetByIDs(ctx context.Context, entityType domain.EntityType, ids []int64) ([]domain.Entity, error)
}
