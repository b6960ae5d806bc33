package query

import (
	"context"
	"fmt"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
	"github.com/rpattn/obsquery/internal/schema/validator"
)

// resolveSubquery validates the nested specification declared as param. It
// runs inside the parent's Validate, so subqueries are only written once.
func (s *Spec) resolveSubquery(ctx context.Context, parent domain.EntityType, param string, target domain.EntityType, raw map[string]any, depth int) (map[string]any, []domain.ValidationError, error) {
	registry := s.factory.registry
	if !registry.Relatable(target, parent) {
		return nil, nil, schema.ConfigErrorf("%s.%s: %s specifications cannot filter %s", parent, param, target, parent)
	}
	if depth > s.factory.opts.MaxSubqueryDepth {
		return nil, nil, &validator.DepthError{Max: s.factory.opts.MaxSubqueryDepth}
	}
	nestedSchema, ok := registry.Schema(target)
	if !ok {
		return nil, nil, schema.ConfigErrorf("%s.%s: subquery target %s is not registered", parent, param, target)
	}

	nested := newSpec(s.factory, nestedSchema, raw, depth)
	valid, err := nested.Validate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to validate %s subquery: %w", param, err)
	}
	if !valid {
		return nil, nested.Errors(), nil
	}
	s.subqueries[param] = nested
	return nested.Params(), nil, nil
}
