package models

import (
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/query"
)

// ContentFilters returns the preference-driven filters.
func ContentFilters() []query.ContentFilter {
	return []query.ContentFilter{
		{Param: "has_images", Types: []domain.EntityType{domain.EntityTypeObservation}},
		{Param: "has_specimen", Types: []domain.EntityType{domain.EntityTypeObservation}},
		{Param: "region", Types: []domain.EntityType{domain.EntityTypeObservation, domain.EntityTypeLocation}},
	}
}
