package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/obsquery/internal/domain"
)

// ModelKey carries the entity type in a serialized specification.
const ModelKey = "model"

// Description renders the canonical serialization: a JSON object of the
// coerced parameters plus the entity type and the resolved order key. Keys are
// sorted at every level, so logically equal specifications render the same
// string however their input was built.
func (s *Spec) Description(ctx context.Context) (string, error) {
	valid, err := s.Validate(ctx)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrInvalidSpec
	}

	s.descOnce.Do(func() {
		out := s.Params()
		out[ModelKey] = string(s.EntityType())
		out["order_by"] = s.OrderBy()
		raw, err := json.Marshal(out)
		if err != nil {
			s.descErr = fmt.Errorf("failed to serialize query: %w", err)
			return
		}
		s.description = string(raw)
	})
	return s.description, s.descErr
}

// Parse rebuilds a specification from a serialized description. Coerced
// values are valid raw input, so the rebuilt specification serializes to the
// same description.
func (f *Factory) Parse(description string) (*Spec, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(description), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse query description: %w", err)
	}
	model, _ := raw[ModelKey].(string)
	delete(raw, ModelKey)
	return f.New(domain.EntityType(model), raw)
}
