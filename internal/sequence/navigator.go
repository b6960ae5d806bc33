// Package sequence steps through cached result orderings one id at a time.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/logger"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
)

// Records is the cache record store the navigator reads from.
type Records interface {
	Get(ctx context.Context, id int64) (domain.QueryRecord, error)
	GetOrCreate(ctx context.Context, spec *query.Spec) (domain.QueryRecord, error)
}

// Step asks for the neighbour of Current in a record's ordering. EntityType
// picks the default ordering used when the record is gone.
type Step struct {
	EntityType domain.EntityType
	RecordID   int64
	Current    int64
	Direction  domain.Direction
}

// Result is the outcome of a step. RecordID is the record actually traversed;
// it differs from the request when Fallback is set.
type Result struct {
	ID       int64 `json:"id,omitempty"`
	Found    bool  `json:"found"`
	RecordID int64 `json:"record_id"`
	Fallback bool  `json:"fallback"`
}

// Navigator implements next/prev/first/last over cache records.
type Navigator struct {
	records Records
	factory *query.Factory
	wrap    bool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithWrap makes stepping past either end continue from the other.
func WithWrap(wrap bool) Option {
	return func(n *Navigator) { n.wrap = wrap }
}

// WithMetrics records steps and fallbacks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Navigator) { n.metrics = m }
}

// New creates a navigator.
func New(records Records, factory *query.Factory, opts ...Option) *Navigator {
	n := &Navigator{
		records: records,
		factory: factory,
		logger:  logger.Component(log.Logger, "sequence"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Step moves one position through the record's ordering. A record that no
// longer exists, or that orders another entity type, is replaced by the
// type's default ordering and the result is flagged as a fallback.
func (n *Navigator) Step(ctx context.Context, step Step) (Result, error) {
	rec, err := n.records.Get(ctx, step.RecordID)
	fallback := false
	switch {
	case errors.Is(err, repository.ErrNotFound):
		fallback = true
	case err != nil:
		return Result{}, fmt.Errorf("failed to load query record %d: %w", step.RecordID, err)
	case rec.Model != step.EntityType:
		fallback = true
	}

	if fallback {
		rec, err = n.rebuild(ctx, step)
		if err != nil {
			return Result{}, err
		}
	}

	id, found := n.move(rec.ResultIDs, step.Current, step.Direction)
	n.metrics.RecordStep(string(step.Direction), found, fallback)
	return Result{ID: id, Found: found, RecordID: rec.ID, Fallback: fallback}, nil
}

func (n *Navigator) rebuild(ctx context.Context, step Step) (domain.QueryRecord, error) {
	spec, err := n.factory.Default(step.EntityType)
	if err != nil {
		return domain.QueryRecord{}, err
	}
	rec, err := n.records.GetOrCreate(ctx, spec)
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("failed to rebuild default %s ordering: %w", step.EntityType, err)
	}
	n.logger.Info().
		Int64("record_id", step.RecordID).
		Int64("fallback_record_id", rec.ID).
		Str("model", string(step.EntityType)).
		Msg("query record gone, stepping through default ordering")
	return rec, nil
}

func (n *Navigator) move(ids []int64, current int64, dir domain.Direction) (int64, bool) {
	if len(ids) == 0 {
		return 0, false
	}

	var target int
	switch dir {
	case domain.DirectionFirst:
		target = 0
	case domain.DirectionLast:
		target = len(ids) - 1
	case domain.DirectionNext, domain.DirectionPrev:
		idx, exact, before := locate(ids, current)
		target = idx
		switch {
		case dir == domain.DirectionNext && (exact || !before):
			target = idx + 1
		case dir == domain.DirectionPrev && (exact || before):
			target = idx - 1
		}
	default:
		return 0, false
	}

	if target < 0 || target >= len(ids) {
		if !n.wrap {
			return 0, false
		}
		target = (target + len(ids)) % len(ids)
	}
	return ids[target], true
}

// locate finds current in ids. When it is missing, idx is the stored id
// closest in value and before reports whether current sits just before it.
func locate(ids []int64, current int64) (idx int, exact, before bool) {
	best := -1
	var bestDist int64
	for i, id := range ids {
		if id == current {
			return i, true, false
		}
		dist := id - current
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, false, ids[best] > current
}
