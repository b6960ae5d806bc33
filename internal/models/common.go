package models

import (
	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/schema"
)

// baseParams are declared by every entity type.
func baseParams(t domain.EntityType) []schema.Declaration {
	return []schema.Declaration{
		schema.Declare("id_in_set", schema.SeqOf(schema.Ref(t))),
		schema.Declare("created_at", schema.SeqOf(schema.Time())),
		schema.Declare("updated_at", schema.SeqOf(schema.Time())),
		schema.Declare(query.PreferenceParam, schema.Boolean()),
	}
}

// ownedParams are declared by entity types with a user_id owner.
func ownedParams() []schema.Declaration {
	return []schema.Declaration{
		schema.Declare("by_user", schema.Ref(domain.EntityTypeUser)),
		schema.Declare("users", schema.SeqOf(schema.Ref(domain.EntityTypeUser))),
	}
}

func withBase(t domain.EntityType, owned bool, decls ...schema.Declaration) []schema.Declaration {
	out := baseParams(t)
	if owned {
		out = append(out, ownedParams()...)
	}
	return append(out, decls...)
}

func registerBase(r *compiler.Registry, t domain.EntityType, table string, owned bool) {
	r.Predicate(t, "id_in_set", compiler.IDsIn(table+".id"))
	r.Predicate(t, "created_at", compiler.TimeRange(table+".created_at"))
	r.Predicate(t, "updated_at", compiler.TimeRange(table+".updated_at"))
	r.Ignore(t, query.PreferenceParam)
	if owned {
		r.Predicate(t, "by_user", compiler.IDsIn(table+".user_id"))
		r.Predicate(t, "users", compiler.IDsIn(table+".user_id"))
	}
}

// by orders a table by one column then id, in the given direction.
func by(table, column, dir string) compiler.OrderFunc {
	return func() compiler.Order {
		return compiler.Order{Columns: []string{table + "." + column + " " + dir, table + ".id " + dir}}
	}
}

func byID(table string) compiler.OrderFunc {
	return func() compiler.Order {
		return compiler.Order{Columns: []string{table + ".id ASC"}}
	}
}

func registerTimestampOrders(r *compiler.Registry, t domain.EntityType, table string) {
	r.Order(t, "created_at", by(table, "created_at", "DESC"))
	r.Order(t, "updated_at", by(table, "updated_at", "DESC"))
	r.Order(t, "id", byID(table))
}
