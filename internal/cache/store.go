// Package cache persists query specifications with their computed result
// orderings and sweeps out stale ones.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/logger"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
)

// DefaultMaxCachedIDs bounds a stored ordering when no bound is configured.
const DefaultMaxCachedIDs = 100000

// Compiler turns a validated specification into an executable plan.
type Compiler interface {
	Compile(ctx context.Context, spec *query.Spec) (*compiler.Plan, error)
}

// Store is the cache record store. Records are keyed by the specification's
// canonical description, so logically equal specifications share one.
type Store struct {
	records  repository.QueryRecordRepository
	compiler Compiler
	maxIDs   int
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxCachedIDs bounds stored orderings. Longer results are truncated.
func WithMaxCachedIDs(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxIDs = n
		}
	}
}

// WithMetrics records lookups and record sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a cache record store.
func NewStore(records repository.QueryRecordRepository, c Compiler, opts ...Option) *Store {
	s := &Store{
		records:  records,
		compiler: c,
		maxIDs:   DefaultMaxCachedIDs,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Component(s.logger, "cache")
	return s
}

// GetOrCreate returns the record for spec, executing it only when no record
// exists. Concurrent misses in this process share one execution; across
// processes the unique description decides the winner and losers re-read.
func (s *Store) GetOrCreate(ctx context.Context, spec *query.Spec) (domain.QueryRecord, error) {
	desc, err := spec.Description(ctx)
	if err != nil {
		return domain.QueryRecord{}, err
	}

	rec, err := s.records.TouchByDescription(ctx, desc)
	if err == nil {
		s.metrics.RecordCacheLookup("hit")
		s.logger.Debug().Int64("record_id", rec.ID).Str("model", string(rec.Model)).Msg("cache hit")
		return rec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.QueryRecord{}, err
	}

	// The flight is shared, so it must outlive the request that started it.
	// A cancelled waiter stops waiting; the others still get the record.
	flight := s.group.DoChan(desc, func() (any, error) {
		return s.create(context.WithoutCancel(ctx), spec, desc)
	})
	select {
	case res := <-flight:
		if res.Err != nil {
			return domain.QueryRecord{}, res.Err
		}
		return res.Val.(domain.QueryRecord), nil
	case <-ctx.Done():
		return domain.QueryRecord{}, ctx.Err()
	}
}

func (s *Store) create(ctx context.Context, spec *query.Spec, desc string) (domain.QueryRecord, error) {
	plan, err := s.compiler.Compile(ctx, spec)
	if err != nil {
		return domain.QueryRecord{}, err
	}
	ids, truncated, err := plan.IDs(ctx, s.maxIDs)
	if err != nil {
		return domain.QueryRecord{}, err
	}

	rec, created, err := s.records.Create(ctx, domain.QueryRecord{
		Description: desc,
		Model:       spec.EntityType(),
		ResultIDs:   ids,
		Truncated:   truncated,
	})
	if err != nil {
		return domain.QueryRecord{}, err
	}
	if !created {
		s.metrics.RecordCacheLookup("race")
		rec, err = s.records.TouchByDescription(ctx, desc)
		if err != nil {
			return domain.QueryRecord{}, fmt.Errorf("failed to re-read query record after conflict: %w", err)
		}
		return rec, nil
	}

	s.metrics.RecordCacheLookup("miss")
	s.metrics.RecordCacheRecord(len(ids))
	s.logger.Debug().
		Int64("record_id", rec.ID).
		Str("model", string(rec.Model)).
		Int("ids", len(ids)).
		Bool("truncated", truncated).
		Msg("cache miss, record created")
	return rec, nil
}

// Get returns a record by id, counting the access. A missing record is
// repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (domain.QueryRecord, error) {
	return s.records.TouchByID(ctx, id)
}
