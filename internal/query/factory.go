package query

import (
	"errors"
	"fmt"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
	"github.com/rpattn/obsquery/internal/schema/validator"
)

// DefaultMaxSubqueryDepth bounds subquery nesting when Options leaves it unset.
const DefaultMaxSubqueryDepth = 3

var (
	// ErrInvalidSpec is returned when an invalid specification is executed
	// or serialized.
	ErrInvalidSpec = errors.New("query specification is invalid")
	// ErrUnknownEntityType is returned for entity types with no schema.
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// Options configure a Factory.
type Options struct {
	MaxArrayLength   int
	MaxSubqueryDepth int
	Lookup           validator.LookupFunc
	Filters          []ContentFilter
}

// Factory creates specifications against a frozen schema registry. It holds
// no per-request state and is safe for concurrent use.
type Factory struct {
	registry *schema.Registry
	opts     Options
}

// NewFactory creates a Factory. The registry must be frozen.
func NewFactory(registry *schema.Registry, opts Options) (*Factory, error) {
	if registry == nil || !registry.Frozen() {
		return nil, schema.ConfigErrorf("query factory needs a frozen schema registry")
	}
	if opts.MaxArrayLength <= 0 {
		opts.MaxArrayLength = validator.DefaultMaxArrayLength
	}
	if opts.MaxSubqueryDepth <= 0 {
		opts.MaxSubqueryDepth = DefaultMaxSubqueryDepth
	}
	for _, f := range opts.Filters {
		if err := f.check(registry); err != nil {
			return nil, err
		}
	}
	return &Factory{registry: registry, opts: opts}, nil
}

// Registry returns the schema registry.
func (f *Factory) Registry() *schema.Registry {
	return f.registry
}

// MaxSubqueryDepth returns the configured nesting bound.
func (f *Factory) MaxSubqueryDepth() int {
	return f.opts.MaxSubqueryDepth
}

// New creates an unvalidated specification. raw is copied; later changes to
// the caller's map do not affect the specification.
func (f *Factory) New(entityType domain.EntityType, raw map[string]any) (*Spec, error) {
	s, ok := f.registry.Schema(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
	return newSpec(f, s, raw, 0), nil
}

// Default creates the default-order specification for an entity type.
func (f *Factory) Default(entityType domain.EntityType) (*Spec, error) {
	return f.New(entityType, nil)
}

func (f *Factory) validator(s *Spec) *validator.Validator {
	return validator.New(validator.Options{
		MaxArrayLength:  f.opts.MaxArrayLength,
		Lookup:          f.opts.Lookup,
		ResolveSubquery: s.resolveSubquery,
	})
}
