package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/schema"
)

// Compiler translates validated specifications into SQL against the store.
type Compiler struct {
	registry *Registry
	db       db.DB
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMetrics records executions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compiler) { c.metrics = m }
}

// WithLogger sets the compiler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compiler) { c.logger = l.With().Str("component", "compiler").Logger() }
}

// New creates a Compiler.
func New(registry *Registry, database db.DB, opts ...Option) *Compiler {
	c := &Compiler{registry: registry, db: database, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile validates spec (once) and builds its plan. Executing an invalid
// specification returns query.ErrInvalidSpec; implementation gaps return a
// *schema.ConfigError.
func (c *Compiler) Compile(ctx context.Context, spec *query.Spec) (*Plan, error) {
	valid, err := spec.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, query.ErrInvalidSpec
	}

	table, ok := c.registry.TableFor(spec.EntityType())
	if !ok {
		return nil, schema.ConfigErrorf("no table registered for %s", spec.EntityType())
	}
	where, err := c.conditions(spec)
	if err != nil {
		return nil, err
	}
	orderFn, ok := c.registry.orders[paramKey{spec.EntityType(), spec.OrderBy()}]
	if !ok {
		return nil, schema.ConfigErrorf("no order builder for %s order %s", spec.EntityType(), spec.OrderBy())
	}

	alphabet, hasAlphabet := c.registry.alphabets[spec.EntityType()]
	return &Plan{
		compiler:    c,
		entityType:  spec.EntityType(),
		table:       table,
		where:       where,
		order:       orderFn(),
		alphabet:    alphabet,
		hasAlphabet: hasAlphabet,
	}, nil
}

// conditions ANDs the predicates of every coerced parameter, in parameter
// name order so the generated SQL is stable.
func (c *Compiler) conditions(spec *query.Spec) (squirrel.And, error) {
	t := spec.EntityType()
	params := spec.Params()
	where := squirrel.And{}

	for _, decl := range spec.Schema().Declarations() {
		value, ok := params[decl.Name]
		if !ok || decl.Name == schema.OrderParam {
			continue
		}
		key := paramKey{t, decl.Name}
		if _, skip := c.registry.ignored[key]; skip {
			continue
		}

		if decl.Shape.Kind == schema.KindSubquery {
			cond, err := c.subquery(spec, decl)
			if err != nil {
				return nil, err
			}
			where = append(where, cond...)
			continue
		}

		fn, ok := c.registry.predicates[key]
		if !ok {
			return nil, schema.ConfigErrorf("no predicate builder for %s.%s", t, decl.Name)
		}
		cond, err := fn(value, params)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s.%s predicate: %w", t, decl.Name, err)
		}
		if cond != nil {
			where = append(where, cond)
		}
	}
	return where, nil
}

// subquery merges a nested specification into the parent's pass: same-type
// predicates are ANDed directly, other types go through the relation rule.
func (c *Compiler) subquery(parent *query.Spec, decl schema.Declaration) (squirrel.And, error) {
	nested, ok := parent.Subquery(decl.Name)
	if !ok {
		return nil, schema.ConfigErrorf("%s.%s has a value but no validated subquery", parent.EntityType(), decl.Name)
	}
	cond, err := c.conditions(nested)
	if err != nil {
		return nil, err
	}
	if nested.EntityType() == parent.EntityType() {
		return cond, nil
	}
	rel, ok := c.registry.relations[relationKey{nested.EntityType(), parent.EntityType()}]
	if !ok {
		return nil, schema.ConfigErrorf("no relation rule for %s inside %s", nested.EntityType(), parent.EntityType())
	}
	return squirrel.And{rel(cond)}, nil
}

func (c *Compiler) record(t domain.EntityType, op string, start time.Time, err error) {
	c.metrics.RecordExecution(string(t), op, time.Since(start), err)
	if err != nil {
		c.logger.Error().Err(err).Str("model", string(t)).Str("operation", op).Msg("query execution failed")
		return
	}
	c.logger.Debug().Str("model", string(t)).Str("operation", op).Dur("duration", time.Since(start)).Msg("query executed")
}
