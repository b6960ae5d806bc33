package query

import (
	"context"
	"sync"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// PreferenceParam tags a specification whose content filters were injected
// from preferences rather than chosen by the caller.
const PreferenceParam = "preference_filter"

// Spec is an entity-typed bag of validated parameters. It moves from
// unvalidated to valid or invalid exactly once, on the first call to
// Validate; a new Spec must be built to change the input.
type Spec struct {
	factory *Factory
	schema  *schema.Schema
	raw     map[string]any
	depth   int
	// tagged is set by ApplyDefaults when it injected a content filter.
	tagged bool

	once       sync.Once
	valid      bool
	err        error
	params     map[string]any
	errs       []domain.ValidationError
	subqueries map[string]*Spec

	descOnce    sync.Once
	description string
	descErr     error
}

func newSpec(f *Factory, s *schema.Schema, raw map[string]any, depth int) *Spec {
	copied := make(map[string]any, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	return &Spec{
		factory:    f,
		schema:     s,
		raw:        copied,
		depth:      depth,
		subqueries: make(map[string]*Spec),
	}
}

// EntityType returns the type of record the specification selects.
func (s *Spec) EntityType() domain.EntityType {
	return s.schema.Type
}

// Schema returns the entity type's parameter schema.
func (s *Spec) Schema() *schema.Schema {
	return s.schema
}

// Factory returns the factory the specification was built with.
func (s *Spec) Factory() *Factory {
	return s.factory
}

// Raw returns a copy of the raw input.
func (s *Spec) Raw() map[string]any {
	out := make(map[string]any, len(s.raw))
	for k, v := range s.raw {
		out[k] = v
	}
	return out
}

// Validate coerces the raw input once and reports validity. The error return
// carries configuration and infrastructure failures only; malformed input is
// reported through Errors. Every call after the first returns the stored
// outcome, whatever ctx it is given.
func (s *Spec) Validate(ctx context.Context) (bool, error) {
	s.once.Do(func() {
		result, err := s.factory.validator(s).Validate(ctx, s.schema, s.raw, s.depth)
		if err != nil {
			s.err = err
			return
		}
		s.params = result.Params
		s.errs = result.Errors
		s.valid = result.IsValid()
	})
	return s.valid, s.err
}

// Errors returns the field errors recorded by Validate.
func (s *Spec) Errors() []domain.ValidationError {
	return append([]domain.ValidationError(nil), s.errs...)
}

// Params returns the coerced parameters. It is empty before validation.
func (s *Spec) Params() map[string]any {
	out := make(map[string]any, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Param returns one coerced parameter.
func (s *Spec) Param(name string) (any, bool) {
	v, ok := s.params[name]
	return v, ok
}

// OrderBy returns the explicit order key or the entity type's default.
func (s *Spec) OrderBy() string {
	if v, ok := s.params[schema.OrderParam].(string); ok {
		return v
	}
	return s.schema.DefaultOrder
}

// PreferenceFilter reports whether content filters were injected, either by
// ApplyDefaults on this specification or in the input it was parsed from.
func (s *Spec) PreferenceFilter() bool {
	if s.tagged {
		return true
	}
	v, _ := s.params[PreferenceParam].(bool)
	return v
}

// Subquery returns the nested specification validated for param.
func (s *Spec) Subquery(param string) (*Spec, bool) {
	nested, ok := s.subqueries[param]
	return nested, ok
}

// Depth is the nesting level; top-level specifications are at depth 0.
func (s *Spec) Depth() int {
	return s.depth
}
