package validator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New(domain.EntityTypeObservation, "date", []string{"date", "id"},
		schema.Declare("by_user", schema.Ref(domain.EntityTypeUser)),
		schema.Declare("users", schema.SeqOf(schema.Ref(domain.EntityTypeUser))),
		schema.Declare("has_images", schema.Boolean()),
		schema.Declare("date", schema.SeqOf(schema.Date())),
		schema.Declare("created_at", schema.SeqOf(schema.Time())),
		schema.Declare("confidence", schema.SeqOf(schema.Float())),
		schema.Declare("notes_has", schema.String()),
		schema.Declare("limit", schema.Integer()),
		schema.Declare("misspellings", schema.StringEnum("no", "either", "only")),
		schema.Declare("with_comments", schema.BooleanEnum(true)),
		schema.Declare("in_box", schema.BoundingBox()),
		schema.Require("title", schema.String()),
	)
}

func lookupUsers(_ context.Context, t domain.EntityType, value string) ([]int64, error) {
	if t != domain.EntityTypeUser {
		return nil, ErrLookupUnsupported
	}
	switch strings.ToLower(value) {
	case "alice":
		return []int64{1}, nil
	case "twins":
		return []int64{3, 2, 3}, nil
	}
	return nil, nil
}

func validate(t *testing.T, v *Validator, raw map[string]any) Result {
	t.Helper()
	result, err := v.Validate(context.Background(), testSchema(), raw, 0)
	require.NoError(t, err)
	return result
}

func newValidator() *Validator {
	return New(Options{Lookup: lookupUsers})
}

func TestValidate_CoercesScalars(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{
		"title":      "x",
		"by_user":    "alice",
		"has_images": "yes",
		"notes_has":  42,
		"limit":      "17",
		"confidence": []string{"1.5", ".5"},
	})

	require.True(t, result.IsValid(), "errors: %v", result.Errors)
	assert.Equal(t, []int64{1}, result.Params["by_user"])
	assert.Equal(t, true, result.Params["has_images"])
	assert.Equal(t, "42", result.Params["notes_has"])
	assert.Equal(t, int64(17), result.Params["limit"])
	assert.Equal(t, []float64{1.5, 0.5}, result.Params["confidence"])
}

func TestValidate_DropsUnknownKeys(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{"title": "x", "foo": "bar", "has_images": true})

	assert.True(t, result.IsValid())
	assert.NotContains(t, result.Params, "foo")
	assert.Equal(t, true, result.Params["has_images"])
}

func TestValidate_RequiredField(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{"title": "  "})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "title", result.Errors[0].Field)
}

func TestValidate_MalformedScalarsAreFieldErrors(t *testing.T) {
	cases := map[string]any{
		"has_images": "perhaps",
		"limit":      "1.5",
		"confidence": "abc",
		"date":       "yesterday",
		"created_at": "noon",
		"notes_has":  []int{1},
	}
	for field, value := range cases {
		t.Run(field, func(t *testing.T) {
			result := validate(t, newValidator(), map[string]any{"title": "x", field: value})

			require.False(t, result.IsValid())
			assert.Equal(t, field, result.Errors[0].Field)
			assert.NotContains(t, result.Params, field)
		})
	}
}

func TestValidate_EntityReferences(t *testing.T) {
	v := newValidator()

	result := validate(t, v, map[string]any{"title": "x", "by_user": domain.User{ID: 9}})
	assert.Equal(t, []int64{9}, result.Params["by_user"])

	result = validate(t, v, map[string]any{"title": "x", "by_user": "12"})
	assert.Equal(t, []int64{12}, result.Params["by_user"])

	result = validate(t, v, map[string]any{"title": "x", "by_user": int64(5)})
	assert.Equal(t, []int64{5}, result.Params["by_user"])

	result = validate(t, v, map[string]any{"title": "x", "by_user": "twins"})
	assert.Equal(t, []int64{3, 2}, result.Params["by_user"])

	result = validate(t, v, map[string]any{"title": "x", "by_user": domain.Name{ID: 4}})
	require.False(t, result.IsValid())
	assert.Equal(t, "by_user", result.Errors[0].Field)

	result = validate(t, v, map[string]any{"title": "x", "by_user": domain.User{}})
	require.False(t, result.IsValid())
}

func TestValidate_FailedLookupMatchesNothing(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{"title": "x", "by_user": "nobody"})

	require.True(t, result.IsValid())
	assert.Equal(t, []int64{}, result.Params["by_user"])
}

func TestValidate_SequenceWrapsScalarsAndDedupesRefs(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{
		"title": "x",
		"users": []any{"alice", 1, "twins", domain.User{ID: 2}},
		"date":  "2024-05",
	})

	require.True(t, result.IsValid(), "errors: %v", result.Errors)
	assert.Equal(t, []int64{1, 3, 2}, result.Params["users"])
	assert.Equal(t, []string{"2024-05"}, result.Params["date"])
}

func TestValidate_SequenceTooLong(t *testing.T) {
	ids := make([]int64, DefaultMaxArrayLength+1)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	result := validate(t, newValidator(), map[string]any{"title": "x", "users": ids})

	require.False(t, result.IsValid())
	assert.Equal(t, "users", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Message, "too many values")
	assert.NotContains(t, result.Params, "users")
}

func TestValidate_SequenceAtLimit(t *testing.T) {
	v := New(Options{MaxArrayLength: 3})
	result := validate(t, v, map[string]any{"title": "x", "users": []int{1, 2, 3}})

	assert.True(t, result.IsValid())
	assert.Equal(t, []int64{1, 2, 3}, result.Params["users"])
}

func TestValidate_EnumsDropInvalidValues(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{
		"title":         "x",
		"misspellings":  "sometimes",
		"with_comments": "no",
		"order_by":      "random",
	})
	assert.True(t, result.IsValid())
	assert.NotContains(t, result.Params, "misspellings")
	assert.NotContains(t, result.Params, "with_comments")
	assert.NotContains(t, result.Params, "order_by")

	result = validate(t, newValidator(), map[string]any{
		"title":         "x",
		"misspellings":  "only",
		"with_comments": "1",
		"order_by":      "id",
	})
	assert.Equal(t, "only", result.Params["misspellings"])
	assert.Equal(t, true, result.Params["with_comments"])
	assert.Equal(t, "id", result.Params["order_by"])
}

func TestValidate_Records(t *testing.T) {
	result := validate(t, newValidator(), map[string]any{
		"title":  "x",
		"in_box": map[string]string{"north": "45.5", "south": "40", "east": ""},
	})
	require.True(t, result.IsValid(), "errors: %v", result.Errors)
	assert.Equal(t, map[string]any{"north": 45.5, "south": 40.0}, result.Params["in_box"])

	result = validate(t, newValidator(), map[string]any{
		"title":  "x",
		"in_box": map[string]any{"north": "up"},
	})
	require.False(t, result.IsValid())
	assert.Equal(t, "in_box.north", result.Errors[0].Field)
}

func TestValidate_DatesAndTimes(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 5, 0, time.FixedZone("x", -3600))
	result := validate(t, newValidator(), map[string]any{
		"title":      "x",
		"date":       []any{at, "05-01", "0"},
		"created_at": []any{at, "2024-03"},
	})

	require.True(t, result.IsValid(), "errors: %v", result.Errors)
	assert.Equal(t, []string{"2024-03-09", "05-01"}, result.Params["date"])
	assert.Equal(t, []string{"2024-03-10-00-30-05", "2024-03"}, result.Params["created_at"])
}

func TestValidate_Deterministic(t *testing.T) {
	raw := map[string]any{"title": "x", "users": []any{"twins", "alice"}, "has_images": "on"}
	first := validate(t, newValidator(), raw)
	second := validate(t, newValidator(), raw)

	assert.Equal(t, first, second)
}

func TestValidate_SubqueryErrorsAreNested(t *testing.T) {
	s := schema.New(domain.EntityTypeName, "name", []string{"name"},
		schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
	)
	var gotDepth int
	v := New(Options{
		Lookup: lookupUsers,
		ResolveSubquery: func(ctx context.Context, parent domain.EntityType, param string, target domain.EntityType, raw map[string]any, depth int) (map[string]any, []domain.ValidationError, error) {
			gotDepth = depth
			nested, err := New(Options{Lookup: lookupUsers}).Validate(ctx, testSchema(), raw, depth)
			return nested.Params, nested.Errors, err
		},
	})

	result, err := v.Validate(context.Background(), s, map[string]any{
		"observation_query": map[string]any{"title": "x", "has_images": "maybe"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, gotDepth)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "observation_query.has_images", result.Errors[0].Field)

	result, err = v.Validate(context.Background(), s, map[string]any{"observation_query": "alice"}, 0)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "observation_query", result.Errors[0].Field)
}

func TestValidate_SubqueryWithoutResolverIsConfigError(t *testing.T) {
	s := schema.New(domain.EntityTypeName, "name", []string{"name"},
		schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
	)
	_, err := New(Options{}).Validate(context.Background(), s, map[string]any{
		"observation_query": map[string]any{},
	}, 0)

	assert.True(t, schema.IsConfigError(err))
}

func TestValidate_NonFiniteFloatsAreFieldErrors(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		result := validate(t, newValidator(), map[string]any{
			"title":      "x",
			"confidence": []any{1.0, f},
		})
		require.False(t, result.IsValid(), "%v accepted", f)
		assert.Equal(t, "confidence", result.Errors[0].Field)
		assert.Equal(t, "must be a finite number", result.Errors[0].Message)
	}
}

func TestValidate_RefListsAreResolvedIDsOnly(t *testing.T) {
	v := New(Options{Lookup: lookupUsers, MaxArrayLength: 3})

	result, err := v.Validate(context.Background(), testSchema(), map[string]any{
		"title":   "x",
		"by_user": []any{float64(2), int64(2), 5},
	}, 0)
	require.NoError(t, err)
	require.True(t, result.IsValid(), "errors: %v", result.Errors)
	assert.Equal(t, []int64{2, 5}, result.Params["by_user"])

	for name, value := range map[string]any{
		"too long":     []int64{1, 2, 3, 4},
		"names":        []any{"alice"},
		"nested lists": []any{[]any{1, 2}},
		"non-positive": []any{0},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := v.Validate(context.Background(), testSchema(), map[string]any{
				"title":   "x",
				"by_user": value,
			}, 0)
			require.NoError(t, err)
			require.False(t, result.IsValid())
			assert.Equal(t, "by_user", result.Errors[0].Field)
		})
	}
}

func TestValidate_DepthErrorIsAddressedAtOutermostSubquery(t *testing.T) {
	s := schema.New(domain.EntityTypeName, "name", []string{"name"},
		schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
	)
	resolve := func(ctx context.Context, parent domain.EntityType, param string, target domain.EntityType, raw map[string]any, depth int) (map[string]any, []domain.ValidationError, error) {
		return nil, nil, fmt.Errorf("failed to validate name_query subquery: %w", &DepthError{Max: 2})
	}

	result, err := New(Options{ResolveSubquery: resolve}).Validate(context.Background(), s, map[string]any{
		"observation_query": map[string]any{"name_query": map[string]any{}},
	}, 0)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "observation_query", result.Errors[0].Field)
	assert.Equal(t, "subqueries nested more than 2 deep", result.Errors[0].Message)

	// below the top level the error keeps travelling up
	_, err = New(Options{ResolveSubquery: resolve}).Validate(context.Background(), s, map[string]any{
		"observation_query": map[string]any{},
	}, 1)
	var deep *DepthError
	assert.ErrorAs(t, err, &deep)
}
