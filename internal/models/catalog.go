// Package models declares the queryable entity types: their parameter
// schemas, predicate and order builders, subquery relations, content filters
// and the columns used for lookups and materialization.
package models

import (
	"fmt"
	"sync"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/schema"
)

// Model is the storage metadata of one entity type.
type Model struct {
	Type  domain.EntityType
	Table string
	// Title is the SQL expression rendered as the entity title.
	Title string
	// Joins are LEFT JOIN clauses Title or Fields need.
	Joins []string
	// Fields are extra columns copied into domain.Entity.Fields, keyed by
	// the part after the last dot.
	Fields []string
	// Lookup columns are matched case-insensitively when a reference is
	// given as free text. Empty means ids only.
	Lookup []string
}

var modelTable = []Model{
	{
		Type:   domain.EntityTypeObservation,
		Table:  "observations",
		Title:  "COALESCE(names.text_name, 'Fungi sp.')",
		Joins:  []string{"names ON names.id = observations.name_id"},
		Fields: []string{"observations.when_date", "observations.where_name", "observations.user_id", "observations.name_id", "observations.location_id", "observations.specimen", "observations.vote_cache"},
	},
	{
		Type:   domain.EntityTypeName,
		Table:  "names",
		Title:  "names.text_name",
		Fields: []string{"names.author", "names.rank", "names.deprecated"},
		Lookup: []string{"names.text_name", "names.search_name"},
	},
	{
		Type:   domain.EntityTypeLocation,
		Table:  "locations",
		Title:  "locations.name",
		Fields: []string{"locations.north", "locations.south", "locations.east", "locations.west"},
		Lookup: []string{"locations.name"},
	},
	{
		Type:   domain.EntityTypeImage,
		Table:  "images",
		Title:  "images.notes",
		Fields: []string{"images.when_date", "images.user_id"},
	},
	{
		Type:   domain.EntityTypeUser,
		Table:  "users",
		Title:  "users.name",
		Fields: []string{"users.login"},
		Lookup: []string{"users.login", "users.name"},
	},
}

// Models returns the storage metadata of every entity type.
func Models() []Model {
	return append([]Model(nil), modelTable...)
}

// ModelFor returns the storage metadata of one entity type.
func ModelFor(t domain.EntityType) (Model, bool) {
	for _, m := range modelTable {
		if m.Type == t {
			return m, true
		}
	}
	return Model{}, false
}

// Catalog bundles the frozen schema registry, the predicate registry and the
// content filters of all entity types.
type Catalog struct {
	Schemas    *schema.Registry
	Predicates *compiler.Registry
	Filters    []query.ContentFilter
}

// NewCatalog builds and cross-checks the catalog.
func NewCatalog() (*Catalog, error) {
	schemas := schema.NewRegistry()
	for _, s := range []*schema.Schema{
		observationSchema(),
		nameSchema(),
		locationSchema(),
		imageSchema(),
		userSchema(),
	} {
		if err := schemas.Register(s); err != nil {
			return nil, err
		}
	}

	predicates := compiler.NewRegistry()
	for _, m := range modelTable {
		predicates.Table(m.Type, m.Table)
		predicates.Alphabetical(m.Type, m.Title, m.Joins...)
	}
	registerObservation(predicates)
	registerName(predicates)
	registerLocation(predicates)
	registerImage(predicates)
	registerUser(predicates)

	for _, rel := range relations {
		if err := schemas.AllowRelation(rel.nested, rel.parent); err != nil {
			return nil, err
		}
		predicates.Relation(rel.nested, rel.parent, rel.rule)
	}

	if err := schemas.Freeze(); err != nil {
		return nil, err
	}
	if err := predicates.Check(schemas); err != nil {
		return nil, err
	}
	return &Catalog{Schemas: schemas, Predicates: predicates, Filters: ContentFilters()}, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the process-wide catalog, built on first use.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = NewCatalog()
		if defaultErr != nil {
			defaultErr = fmt.Errorf("failed to build model catalog: %w", defaultErr)
		}
	})
	return defaultCatalog, defaultErr
}
