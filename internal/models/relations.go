package models

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
)

// relation says how a nested specification of one type narrows a parent of
// another.
type relation struct {
	nested, parent domain.EntityType
	rule           compiler.RelationFunc
}

func selectIDs(table string, where squirrel.Sqlizer) squirrel.SelectBuilder {
	return squirrel.Select(table + ".id").From(table).Where(where)
}

// in renders "column IN (sub)".
func in(column string, sub squirrel.Sqlizer) squirrel.Sqlizer {
	return squirrel.Expr(column+" IN (?)", sub)
}

var relations = []relation{
	{
		nested: domain.EntityTypeObservation, parent: domain.EntityTypeName,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			return in("names.id", squirrel.Select("observations.name_id").From("observations").Where(nested))
		},
	},
	{
		nested: domain.EntityTypeObservation, parent: domain.EntityTypeLocation,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			return in("locations.id", squirrel.Select("observations.location_id").From("observations").Where(nested))
		},
	},
	{
		nested: domain.EntityTypeObservation, parent: domain.EntityTypeImage,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			linked := squirrel.Select("observation_images.image_id").
				From("observation_images").
				Where(in("observation_images.observation_id", selectIDs("observations", nested)))
			return in("images.id", linked)
		},
	},
	{
		nested: domain.EntityTypeName, parent: domain.EntityTypeObservation,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			return in("observations.name_id", selectIDs("names", nested))
		},
	},
	{
		nested: domain.EntityTypeLocation, parent: domain.EntityTypeObservation,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			return in("observations.location_id", selectIDs("locations", nested))
		},
	},
	{
		nested: domain.EntityTypeImage, parent: domain.EntityTypeObservation,
		rule: func(nested squirrel.Sqlizer) squirrel.Sqlizer {
			linked := squirrel.Select("observation_images.observation_id").
				From("observation_images").
				Where(in("observation_images.image_id", selectIDs("images", nested)))
			return in("observations.id", linked)
		},
	},
}
