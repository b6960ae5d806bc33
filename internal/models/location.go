package models

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

func locationSchema() *schema.Schema {
	t := domain.EntityTypeLocation
	return schema.New(t, "name",
		[]string{"name", "created_at", "updated_at", "id"},
		withBase(t, true,
			schema.Declare("name_has", schema.String()),
			schema.Declare("pattern", schema.String()),
			schema.Declare("region", schema.String()),
			schema.Declare("in_box", schema.BoundingBox()),
			schema.Declare("has_observations", schema.BooleanEnum(true)),
			schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
		)...,
	)
}

func registerLocation(r *compiler.Registry) {
	t := domain.EntityTypeLocation
	registerBase(r, t, "locations", true)

	r.Predicate(t, "name_has", compiler.SearchIn("locations.name"))
	r.Predicate(t, "pattern", compiler.SearchIn("locations.name"))
	r.Predicate(t, "region", compiler.Suffix("locations.name"))
	r.Predicate(t, "in_box", func(value any) (squirrel.Sqlizer, error) {
		b, ok := parseBox(value)
		if !ok {
			return nil, nil
		}
		return b.contains("locations"), nil
	})
	r.Predicate(t, "has_observations", compiler.Switch(
		"EXISTS (SELECT 1 FROM observations WHERE observations.location_id = locations.id)", ""))

	r.Order(t, "name", by("locations", "name", "ASC"))
	registerTimestampOrders(r, t, "locations")
}
