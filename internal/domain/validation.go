package domain

import "fmt"

// ValidationError is a field-addressed problem with one parameter value.
// Nested fields are joined with dots, outermost parameter first.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Nested returns a copy of e addressed below the given parent field.
func (e ValidationError) Nested(parent string) ValidationError {
	if e.Field == "" {
		e.Field = parent
	} else {
		e.Field = parent + "." + e.Field
	}
	return e
}
