package models

import (
	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

func userSchema() *schema.Schema {
	t := domain.EntityTypeUser
	return schema.New(t, "name",
		[]string{"name", "login", "created_at", "id"},
		withBase(t, false,
			schema.Declare("pattern", schema.String()),
		)...,
	)
}

func registerUser(r *compiler.Registry) {
	t := domain.EntityTypeUser
	registerBase(r, t, "users", false)

	r.Predicate(t, "pattern", compiler.SearchIn("users.login", "users.name"))

	r.Order(t, "name", by("users", "name", "ASC"))
	r.Order(t, "login", by("users", "login", "ASC"))
	r.Order(t, "created_at", by("users", "created_at", "DESC"))
	r.Order(t, "id", byID("users"))
}
