package models

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// Ranks lists taxonomic ranks from lowest to highest.
var Ranks = []string{
	"Form", "Variety", "Subspecies", "Species", "Stirps", "Subsection",
	"Section", "Subgenus", "Genus", "Family", "Order", "Class", "Phylum",
	"Kingdom", "Domain", "Group",
}

func nameSchema() *schema.Schema {
	t := domain.EntityTypeName
	return schema.New(t, "name",
		[]string{"name", "created_at", "updated_at", "id"},
		withBase(t, true, append(nameFlagParams(),
			schema.Declare("names", schema.SeqOf(schema.Ref(domain.EntityTypeName))),
			schema.Declare("text_name_has", schema.String()),
			schema.Declare("author_has", schema.String()),
			schema.Declare("pattern", schema.String()),
			schema.Declare("rank", schema.SeqOf(schema.StringEnum(Ranks...))),
			schema.Declare("misspellings", schema.StringEnum("no", "either", "only")),
			schema.Declare("deprecated", schema.Boolean()),
			schema.Declare("has_observations", schema.BooleanEnum(true)),
			schema.Declare("observation_query", schema.Subquery(domain.EntityTypeObservation)),
		)...)...,
	)
}

func registerName(r *compiler.Registry) {
	t := domain.EntityTypeName
	registerBase(r, t, "names", true)
	registerNames(r, t, "names.id")

	r.Predicate(t, "text_name_has", compiler.SearchIn("names.text_name"))
	r.Predicate(t, "author_has", compiler.SearchIn("names.author"))
	r.Predicate(t, "pattern", compiler.SearchIn("names.search_name"))
	r.Predicate(t, "rank", rankRange)
	r.Predicate(t, "misspellings", misspellings)
	r.Predicate(t, "deprecated", compiler.Boolean("names.deprecated"))
	r.Predicate(t, "has_observations", compiler.Switch(
		"EXISTS (SELECT 1 FROM observations WHERE observations.name_id = names.id)", ""))

	r.Order(t, "name", func() compiler.Order {
		return compiler.Order{Columns: []string{"names.text_name ASC", "names.author ASC", "names.id ASC"}}
	})
	registerTimestampOrders(r, t, "names")
}

// rankRange matches every rank between the first and last value given, in
// either order.
func rankRange(value any) (squirrel.Sqlizer, error) {
	vals, ok := value.([]string)
	if !ok || len(vals) == 0 {
		return nil, nil
	}
	lo, hi := rankIndex(vals[0]), rankIndex(vals[len(vals)-1])
	if lo > hi {
		lo, hi = hi, lo
	}
	return squirrel.Eq{"names.rank": append([]string(nil), Ranks[lo:hi+1]...)}, nil
}

func rankIndex(rank string) int {
	for i, r := range Ranks {
		if r == rank {
			return i
		}
	}
	return 0
}

func misspellings(value any) (squirrel.Sqlizer, error) {
	switch value {
	case "no":
		return squirrel.Expr("names.correct_spelling_id IS NULL"), nil
	case "only":
		return squirrel.Expr("names.correct_spelling_id IS NOT NULL"), nil
	}
	return nil, nil
}
