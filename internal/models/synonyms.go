package models

import (
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// Flags that widen a names parameter. They carry no predicate of their own.
const (
	includeSynonyms      = "include_synonyms"
	includeSubtaxa       = "include_subtaxa"
	excludeOriginalNames = "exclude_original_names"
)

func nameFlagParams() []schema.Declaration {
	return []schema.Declaration{
		schema.Declare(includeSynonyms, schema.Boolean()),
		schema.Declare(includeSubtaxa, schema.Boolean()),
		schema.Declare(excludeOriginalNames, schema.Boolean()),
	}
}

func registerNames(r *compiler.Registry, t domain.EntityType, column string) {
	r.PredicateWith(t, "names", namesIn(column))
	r.Ignore(t, includeSynonyms, includeSubtaxa, excludeOriginalNames)
}

type nameFlags struct {
	synonyms         bool
	subtaxa          bool
	excludeOriginals bool
}

func nameFlagsFrom(params map[string]any) nameFlags {
	flag := func(key string) bool {
		v, _ := params[key].(bool)
		return v
	}
	return nameFlags{
		synonyms:         flag(includeSynonyms),
		subtaxa:          flag(includeSubtaxa),
		excludeOriginals: flag(excludeOriginalNames),
	}
}

// namesIn matches column against the given names after synonym, subtaxon
// and original-name expansion.
func namesIn(column string) compiler.ParamsPredicateFunc {
	return func(value any, params map[string]any) (squirrel.Sqlizer, error) {
		ids, ok := value.([]int64)
		if !ok {
			return nil, fmt.Errorf("%s: want []int64, got %T", column, value)
		}
		flags := nameFlagsFrom(params)
		if flags == (nameFlags{}) {
			return squirrel.Eq{column: ids}, nil
		}
		return squirrel.Expr(column+" IN (?)", expandNames(ids, flags)), nil
	}
}

// expandNames selects the ids of the widened name set. With
// exclude_original_names the originals include their other spellings, and
// are removed from the result last.
func expandNames(ids []int64, f nameFlags) squirrel.SelectBuilder {
	originals := nameIDs(squirrel.Eq{"names.id": ids})
	if f.excludeOriginals {
		originals = otherSpellings(originals)
	}

	set := originals
	if f.synonyms {
		set = withSynonyms(set)
	}
	if f.subtaxa {
		set = withSubtaxa(set)
		if f.synonyms {
			set = withSynonyms(set)
		}
	}
	if f.excludeOriginals {
		set = nameIDs(squirrel.And{
			squirrel.Expr("names.id IN (?)", set),
			squirrel.Expr("names.id NOT IN (?)", originals),
		})
	}
	return set
}

func nameIDs(where squirrel.Sqlizer) squirrel.SelectBuilder {
	return squirrel.Select("names.id").From("names").Where(where)
}

// otherSpellings adds every name that shares a correct spelling with one in
// inner.
func otherSpellings(inner squirrel.SelectBuilder) squirrel.SelectBuilder {
	return nameIDs(squirrel.Expr(
		"COALESCE(names.correct_spelling_id, names.id) IN "+
			"(SELECT COALESCE(spelt.correct_spelling_id, spelt.id) FROM names spelt WHERE spelt.id IN (?))",
		inner))
}

// withSynonyms adds every name in the synonym group of one in inner.
func withSynonyms(inner squirrel.SelectBuilder) squirrel.SelectBuilder {
	return nameIDs(squirrel.Or{
		squirrel.Expr("names.id IN (?)", inner),
		squirrel.Expr("names.synonym_id IN "+
			"(SELECT syn.synonym_id FROM names syn WHERE syn.synonym_id IS NOT NULL AND syn.id IN (?))",
			inner),
	})
}

// withSubtaxa adds names below one in inner: those whose text name extends
// it ("Amanita" covers "Amanita muscaria") and those whose classification
// lists it ("Family: _Amanitaceae_").
func withSubtaxa(inner squirrel.SelectBuilder) squirrel.SelectBuilder {
	return nameIDs(squirrel.Or{
		squirrel.Expr("names.id IN (?)", inner),
		squirrel.Expr("EXISTS (SELECT 1 FROM names taxon WHERE taxon.id IN (?) AND "+
			"(names.text_name LIKE (taxon.text_name || ' %') OR "+
			`names.classification LIKE ('%\_' || taxon.text_name || '\_%') ESCAPE '\'))`,
			inner),
	})
}
