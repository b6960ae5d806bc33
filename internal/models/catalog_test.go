package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/models"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
	"github.com/rpattn/obsquery/internal/testutil"
)

type env struct {
	factory  *query.Factory
	compiler *compiler.Compiler
	fx       *testutil.Fixtures
}

func newEnv(t *testing.T) *env {
	t.Helper()
	catalog, err := models.Default()
	require.NoError(t, err)
	conn, fx := testutil.NewSeededDB(t)

	factory, err := query.NewFactory(catalog.Schemas, query.Options{
		Lookup:  repository.LookupFunc(repository.NewEntityRepository(conn)),
		Filters: catalog.Filters,
	})
	require.NoError(t, err)
	return &env{factory: factory, compiler: compiler.New(catalog.Predicates, conn), fx: fx}
}

func (e *env) ids(t *testing.T, et domain.EntityType, raw map[string]any) []int64 {
	t.Helper()
	spec, err := e.factory.New(et, raw)
	require.NoError(t, err)
	return e.run(t, spec)
}

func (e *env) run(t *testing.T, spec *query.Spec) []int64 {
	t.Helper()
	ctx := context.Background()
	ok, err := spec.Validate(ctx)
	require.NoError(t, err)
	require.True(t, ok, "errors: %v", spec.Errors())
	plan, err := e.compiler.Compile(ctx, spec)
	require.NoError(t, err)
	ids, _, err := plan.IDs(ctx, 100)
	require.NoError(t, err)
	return ids
}

func TestNewCatalog(t *testing.T) {
	catalog, err := models.NewCatalog()
	require.NoError(t, err)
	assert.True(t, catalog.Schemas.Frozen())
	assert.Len(t, catalog.Schemas.Types(), 5)

	for _, et := range catalog.Schemas.Types() {
		s, ok := catalog.Schemas.Schema(et)
		require.True(t, ok)
		_, ok = s.Lookup(query.PreferenceParam)
		assert.True(t, ok, "%s lacks %s", et, query.PreferenceParam)
		_, ok = models.ModelFor(et)
		assert.True(t, ok, "%s has no model", et)
	}

	again, err := models.Default()
	require.NoError(t, err)
	same, err := models.Default()
	require.NoError(t, err)
	assert.Same(t, again, same)
}

func TestObservation_UserWithImages(t *testing.T) {
	e := newEnv(t)
	ids := e.ids(t, domain.EntityTypeObservation, map[string]any{
		"by_user":    "alice",
		"has_images": true,
	})
	assert.Equal(t, e.fx.ObservationIDs("o3", "o1"), ids)
}

func TestObservation_Predicates(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		raw  map[string]any
		want []string
	}{
		{"default order", nil, []string{"o3", "o4", "o1", "o2", "o5", "o6"}},
		{"has_specimen", map[string]any{"has_specimen": true}, []string{"o4", "o1"}},
		{"has_name false", map[string]any{"has_name": false}, []string{"o6"}},
		{"has_notes false", map[string]any{"has_notes": false}, []string{"o5"}},
		{"with_comments", map[string]any{"with_comments": true}, []string{"o4"}},
		{"region", map[string]any{"region": "California, USA"}, []string{"o3", "o1", "o5", "o6"}},
		{"pattern hits name text", map[string]any{"pattern": "amanita"}, []string{"o4", "o1"}},
		{"confidence minimum", map[string]any{"confidence": []any{2}}, []string{"o3", "o1"}},
		{"misspelled names", map[string]any{"name_query": map[string]any{"misspellings": "only"}}, []string{"o5"}},
		{"image subquery", map[string]any{"image_query": map[string]any{"notes_has": "habitat"}}, []string{"o4"}},
		{"location subquery", map[string]any{"location_query": map[string]any{"name_has": "albion"}}, []string{"o3", "o5"}},
		{"in_box", map[string]any{"in_box": map[string]any{"north": 35, "south": 34, "east": -118, "west": -119}}, []string{"o1", "o6"}},
		{"order by name", map[string]any{"order_by": "name"}, []string{"o2", "o5", "o4", "o1", "o3", "o6"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, e.fx.ObservationIDs(tt.want...), e.ids(t, domain.EntityTypeObservation, tt.raw))
		})
	}
}

func TestObservation_OrdersByLocationID(t *testing.T) {
	e := newEnv(t)
	ids := e.ids(t, domain.EntityTypeObservation, map[string]any{
		"location": "Portland, Oregon, USA",
		"order_by": "id",
	})
	assert.Equal(t, e.fx.ObservationIDs("o2", "o4"), ids)
}

func TestImage_ObservationLookupIsFieldError(t *testing.T) {
	e := newEnv(t)
	spec, err := e.factory.New(domain.EntityTypeImage, map[string]any{"observations": []any{"o1"}})
	require.NoError(t, err)
	ok, err := spec.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, spec.Errors(), 1)
	assert.Equal(t, "observations", spec.Errors()[0].Field)
}

func TestName_Predicates(t *testing.T) {
	e := newEnv(t)
	names := func(keys ...string) []int64 {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			ids[i] = e.fx.Names[k]
		}
		return ids
	}

	assert.Equal(t, names("amanita"), e.ids(t, domain.EntityTypeName, map[string]any{
		"rank": []any{"Genus", "Family"},
	}))
	assert.Equal(t, names("campestris", "muscaria", "edulis"), e.ids(t, domain.EntityTypeName, map[string]any{
		"rank":         []any{"Species"},
		"misspellings": "no",
	}))
	assert.Equal(t, names("muscaria"), e.ids(t, domain.EntityTypeName, map[string]any{
		"observation_query": map[string]any{"by_user": "bob"},
	}))
	assert.Equal(t, names("campestris", "campestros", "muscaria", "edulis"), e.ids(t, domain.EntityTypeName, map[string]any{
		"has_observations": true,
		"misspellings":     "either",
	}))
}

func TestLocation_Predicates(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t,
		[]int64{e.fx.Locations["burbank"], e.fx.Locations["portland"]},
		e.ids(t, domain.EntityTypeLocation, map[string]any{
			"observation_query": map[string]any{"has_specimen": true},
		}))
	assert.Equal(t,
		[]int64{e.fx.Locations["portland"]},
		e.ids(t, domain.EntityTypeLocation, map[string]any{
			"in_box": map[string]any{"north": 46, "south": 45, "east": -122, "west": -123},
		}))
}

func TestImage_ObservationSubquery(t *testing.T) {
	e := newEnv(t)
	ids := e.ids(t, domain.EntityTypeImage, map[string]any{
		"observation_query": map[string]any{"users": []any{"alice"}},
	})
	assert.Equal(t, []int64{e.fx.Images["img2"], e.fx.Images["img1"]}, ids)

	ids = e.ids(t, domain.EntityTypeImage, map[string]any{
		"observations": []any{e.fx.Observations["o4"]},
	})
	assert.Equal(t, []int64{e.fx.Images["img3"]}, ids)
}

func TestUser_Pattern(t *testing.T) {
	e := newEnv(t)
	ids := e.ids(t, domain.EntityTypeUser, map[string]any{"pattern": "burns"})
	assert.Equal(t, []int64{e.fx.Users["bob"]}, ids)
}

func TestContentFilters_Region(t *testing.T) {
	e := newEnv(t)
	spec, err := e.factory.New(domain.EntityTypeObservation, nil)
	require.NoError(t, err)

	filtered := e.factory.ApplyDefaults(spec, domain.Preferences{
		"region":     {State: domain.FilterOn, Value: "Oregon, USA"},
		"has_images": {State: domain.FilterEither},
	})
	require.NotSame(t, spec, filtered)
	assert.True(t, filtered.PreferenceFilter())
	assert.Equal(t, e.fx.ObservationIDs("o4", "o2"), e.run(t, filtered))
}

func TestNames_Expansion(t *testing.T) {
	e := newEnv(t)
	names := func(keys ...string) []int64 {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			ids[i] = e.fx.Names[k]
		}
		return ids
	}

	tests := []struct {
		name string
		raw  map[string]any
		want []int64
	}{
		{"plain", map[string]any{"names": []any{"Amanita"}}, names("amanita")},
		{"subtaxa by text name", map[string]any{
			"names": []any{"Amanita"}, "include_subtaxa": true,
		}, names("amanita", "muscaria")},
		{"subtaxa without originals", map[string]any{
			"names": []any{"Amanita"}, "include_subtaxa": true, "exclude_original_names": true,
		}, names("muscaria")},
		{"synonyms", map[string]any{
			"names": []any{e.fx.Names["campestris"]}, "include_synonyms": true,
		}, names("campestris", "campestros")},
		{"synonyms of a name without a group", map[string]any{
			"names": []any{"Boletus edulis"}, "include_synonyms": true,
		}, names("edulis")},
		{"other spellings are originals", map[string]any{
			"names": []any{e.fx.Names["campestris"]}, "include_synonyms": true, "exclude_original_names": true,
		}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ids(t, domain.EntityTypeName, tt.raw))
		})
	}
}

func TestObservation_NamesIncludeSubtaxaAndSynonyms(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, e.fx.ObservationIDs("o4", "o1"), e.ids(t, domain.EntityTypeObservation, map[string]any{
		"names":           []any{"Amanita"},
		"include_subtaxa": true,
	}))
	assert.Equal(t, e.fx.ObservationIDs("o2", "o5"), e.ids(t, domain.EntityTypeObservation, map[string]any{
		"names":            []any{"Agaricus campestris"},
		"include_synonyms": true,
	}))
	assert.Empty(t, e.ids(t, domain.EntityTypeObservation, map[string]any{"names": []any{"Amanita"}}))
}

func TestPlan_Letters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spec, err := e.factory.New(domain.EntityTypeObservation, nil)
	require.NoError(t, err)
	plan, err := e.compiler.Compile(ctx, spec)
	require.NoError(t, err)

	letters, err := plan.Letters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "F"}, letters)

	onlyA, err := plan.ForLetter("a")
	require.NoError(t, err)
	ids, _, err := onlyA.IDs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, e.fx.ObservationIDs("o4", "o1", "o2", "o5"), ids)
	n, err := onlyA.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	page, err := onlyA.Page(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, e.fx.ObservationIDs("o5"), page)
}
