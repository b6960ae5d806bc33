package models

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

func imageSchema() *schema.Schema {
	t := domain.EntityTypeImage
	return schema.New(t, "created_at",
		[]string{"created_at", "updated_at", "date", "id"},
		withBase(t, true,
			schema.Declare("date", schema.SeqOf(schema.Date())),
			schema.Declare("observations", schema.SeqOf(schema.Ref(domain.EntityTypeObservation))),
			schema.Declare("notes_has", schema.String()),
			schema.Declare("has_observations", schema.BooleanEnum(true)),
			schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
		)...,
	)
}

func registerImage(r *compiler.Registry) {
	t := domain.EntityTypeImage
	registerBase(r, t, "images", true)

	r.Predicate(t, "date", compiler.DateRange("images.when_date"))
	r.Predicate(t, "observations", func(value any) (squirrel.Sqlizer, error) {
		ids, ok := value.([]int64)
		if !ok {
			return nil, nil
		}
		linked := squirrel.Select("observation_images.image_id").
			From("observation_images").
			Where(squirrel.Eq{"observation_images.observation_id": ids})
		return squirrel.Expr("images.id IN (?)", linked), nil
	})
	r.Predicate(t, "notes_has", compiler.SearchIn("images.notes"))
	r.Predicate(t, "has_observations", compiler.Switch(
		"EXISTS (SELECT 1 FROM observation_images WHERE observation_images.image_id = images.id)", ""))

	r.Order(t, "date", by("images", "when_date", "DESC"))
	registerTimestampOrders(r, t, "images")
}
