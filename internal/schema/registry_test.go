package schema

import (
	"testing"

	"github.com/rpattn/obsquery/internal/domain"
)

func observationSchema() *Schema {
	return New(domain.EntityTypeObservation, "date", []string{"date", "id"},
		Declare("has_images", Boolean()),
		Declare("name_query", Subquery(domain.EntityTypeName)),
	)
}

func nameSchema() *Schema {
	return New(domain.EntityTypeName, "name", []string{"name"},
		Declare("observation_query", Subquery(domain.EntityTypeObservation)),
	)
}

func TestNew_DeclaresOrderBy(t *testing.T) {
	s := observationSchema()

	decl, ok := s.Lookup(OrderParam)
	if !ok {
		t.Fatalf("expected order_by to be declared")
	}
	if decl.Shape.Kind != KindEnum || len(decl.Shape.Allowed) != 2 {
		t.Fatalf("expected order_by enum of order keys, got %s", decl.Shape)
	}
	if got := s.Names(); len(got) != 3 || got[0] != "has_images" || got[2] != "order_by" {
		t.Fatalf("unexpected sorted names %v", got)
	}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(observationSchema()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register(observationSchema())
	if !IsConfigError(err) {
		t.Fatalf("expected config error for duplicate registration, got %v", err)
	}
}

func TestRegister_RejectsDuplicateDeclaration(t *testing.T) {
	s := New(domain.EntityTypeUser, "name", []string{"name"},
		Declare("pattern", String()),
		Declare("pattern", Integer()),
	)
	if err := NewRegistry().Register(s); !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRegister_RejectsBadDefaultOrder(t *testing.T) {
	s := New(domain.EntityTypeUser, "login", []string{"name"})
	if err := NewRegistry().Register(s); !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRegister_RejectsMalformedShapes(t *testing.T) {
	shapes := map[string]Shape{
		"empty enum":    {Kind: KindEnum, Base: KindString},
		"ref no target": {Kind: KindRef},
		"seq no elem":   {Kind: KindSeq},
		"seq of seq":    SeqOf(SeqOf(String())),
		"empty record":  Record(),
	}
	for name, shape := range shapes {
		s := New(domain.EntityTypeUser, "name", []string{"name"}, Declare("bad", shape))
		if err := NewRegistry().Register(s); !IsConfigError(err) {
			t.Fatalf("%s: expected config error, got %v", name, err)
		}
	}
}

func TestFreeze_RequiresRelatability(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(observationSchema())
	_ = r.Register(nameSchema())

	if err := r.Freeze(); !IsConfigError(err) {
		t.Fatalf("expected missing relation to fail freeze, got %v", err)
	}

	_ = r.AllowRelation(domain.EntityTypeName, domain.EntityTypeObservation)
	_ = r.AllowRelation(domain.EntityTypeObservation, domain.EntityTypeName)
	if err := r.Freeze(); err != nil {
		t.Fatalf("unexpected freeze error: %v", err)
	}
	if !r.Frozen() {
		t.Fatalf("expected registry to be frozen")
	}
	if err := r.Register(New(domain.EntityTypeUser, "name", []string{"name"})); !IsConfigError(err) {
		t.Fatalf("expected register after freeze to fail, got %v", err)
	}
	if !r.Relatable(domain.EntityTypeImage, domain.EntityTypeImage) {
		t.Fatalf("same-type nesting must be relatable")
	}
	if r.Relatable(domain.EntityTypeImage, domain.EntityTypeName) {
		t.Fatalf("undeclared relation reported relatable")
	}
}

func TestFreeze_RequiresRegisteredTargets(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(New(domain.EntityTypeImage, "id", []string{"id"},
		Declare("by_user", Ref(domain.EntityTypeUser)),
	))
	if err := r.Freeze(); !IsConfigError(err) {
		t.Fatalf("expected unregistered target to fail, got %v", err)
	}
}
