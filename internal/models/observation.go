package models

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

const obsCommentsExist = "EXISTS (SELECT 1 FROM comments WHERE comments.target_type = 'Observation' AND comments.target_id = observations.id)"

func observationSchema() *schema.Schema {
	t := domain.EntityTypeObservation
	return schema.New(t, "date",
		[]string{"date", "created_at", "updated_at", "name", "confidence", "id"},
		withBase(t, true, append(nameFlagParams(),
			schema.Declare("date", schema.SeqOf(schema.Date())),
			schema.Declare("names", schema.SeqOf(schema.Ref(domain.EntityTypeName))),
			schema.Declare("location", schema.Ref(domain.EntityTypeLocation)),
			schema.Declare("locations", schema.SeqOf(schema.Ref(domain.EntityTypeLocation))),
			schema.Declare("has_images", schema.Boolean()),
			schema.Declare("has_specimen", schema.Boolean()),
			schema.Declare("has_name", schema.Boolean()),
			schema.Declare("has_notes", schema.Boolean()),
			schema.Declare("is_collection_location", schema.Boolean()),
			schema.Declare("with_comments", schema.BooleanEnum(true)),
			schema.Declare("notes_has", schema.String()),
			schema.Declare("pattern", schema.String()),
			schema.Declare("region", schema.String()),
			schema.Declare("confidence", schema.SeqOf(schema.Float())),
			schema.Declare("in_box", schema.BoundingBox()),
			schema.Declare("name_query", schema.Subquery(domain.EntityTypeName)),
			schema.Declare("location_query", schema.Subquery(domain.EntityTypeLocation)),
			schema.Declare("image_query", schema.Subquery(domain.EntityTypeImage)),
		)...)...,
	)
}

func registerObservation(r *compiler.Registry) {
	t := domain.EntityTypeObservation
	registerBase(r, t, "observations", true)

	r.Predicate(t, "date", compiler.DateRange("observations.when_date"))
	registerNames(r, t, "observations.name_id")
	r.Predicate(t, "location", compiler.IDsIn("observations.location_id"))
	r.Predicate(t, "locations", compiler.IDsIn("observations.location_id"))
	r.Predicate(t, "has_images", compiler.NotNull("observations.thumb_image_id"))
	r.Predicate(t, "has_specimen", compiler.Boolean("observations.specimen"))
	r.Predicate(t, "has_name", compiler.NotNull("observations.name_id"))
	r.Predicate(t, "has_notes", compiler.Switch("observations.notes <> ''", "observations.notes = ''"))
	r.Predicate(t, "is_collection_location", compiler.Boolean("observations.is_collection_location"))
	r.Predicate(t, "with_comments", compiler.Switch(obsCommentsExist, ""))
	r.Predicate(t, "notes_has", compiler.SearchIn("observations.notes"))
	r.Predicate(t, "pattern", compiler.SearchIn(
		"COALESCE((SELECT names.text_name FROM names WHERE names.id = observations.name_id), '')",
		"observations.where_name",
		"observations.notes",
	))
	r.Predicate(t, "region", compiler.Suffix("observations.where_name"))
	r.Predicate(t, "confidence", compiler.FloatRange("observations.vote_cache"))
	r.Predicate(t, "in_box", observationInBox)

	r.Order(t, "date", func() compiler.Order {
		return compiler.Order{Columns: []string{"observations.when_date DESC", "observations.id DESC"}}
	})
	r.Order(t, "name", func() compiler.Order {
		return compiler.Order{
			Joins: []string{"names ON names.id = observations.name_id"},
			Columns: []string{
				"CASE WHEN names.text_name IS NULL THEN 1 ELSE 0 END",
				"names.text_name ASC",
				"observations.when_date DESC",
				"observations.id DESC",
			},
		}
	})
	r.Order(t, "confidence", by("observations", "vote_cache", "DESC"))
	registerTimestampOrders(r, t, "observations")
}

// observationInBox matches observations whose coordinates fall inside the
// box, or, lacking coordinates, whose location lies wholly inside it.
func observationInBox(value any) (squirrel.Sqlizer, error) {
	b, ok := parseBox(value)
	if !ok {
		return nil, nil
	}
	located := squirrel.Select("locations.id").From("locations").Where(b.contains("locations"))
	return squirrel.Or{
		squirrel.And{
			squirrel.Expr("observations.lat IS NOT NULL"),
			squirrel.Expr("observations.lat >= ? AND observations.lat <= ?", b.south, b.north),
			b.spans("observations.lng"),
		},
		squirrel.And{
			squirrel.Expr("observations.lat IS NULL"),
			squirrel.Expr("observations.location_id IN (?)", located),
		},
	}, nil
}
