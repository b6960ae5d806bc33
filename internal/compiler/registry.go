package compiler

import (
	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// PredicateFunc turns one coerced parameter value into a condition.
type PredicateFunc func(value any) (squirrel.Sqlizer, error)

// ParamsPredicateFunc is a PredicateFunc that also reads the other coerced
// parameters of the same specification, for flags that modify it.
type ParamsPredicateFunc func(value any, params map[string]any) (squirrel.Sqlizer, error)

// Alphabet is the title expression a plan indexes by first letter, with the
// LEFT JOIN clauses it needs.
type Alphabet struct {
	Title string
	Joins []string
}

// Order is an ORDER BY rendering. Columns must end with a unique tiebreaker
// so orderings are total. Joins are LEFT JOIN clauses the columns need.
type Order struct {
	Joins   []string
	Columns []string
}

// OrderFunc builds the Order for one order key.
type OrderFunc func() Order

// RelationFunc filters the parent table by a condition on the nested table.
// nested is the nested specification's WHERE condition, already compiled.
type RelationFunc func(nested squirrel.Sqlizer) squirrel.Sqlizer

type paramKey struct {
	entityType domain.EntityType
	name       string
}

type relationKey struct {
	nested domain.EntityType
	parent domain.EntityType
}

// Registry maps (entity type, parameter) to predicate builders, (entity
// type, order key) to order builders, and (nested, parent) to relation rules.
// It is populated at startup and read-only afterwards.
type Registry struct {
	tables     map[domain.EntityType]string
	predicates map[paramKey]ParamsPredicateFunc
	orders     map[paramKey]OrderFunc
	alphabets  map[domain.EntityType]Alphabet
	relations  map[relationKey]RelationFunc
	ignored    map[paramKey]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:     make(map[domain.EntityType]string),
		predicates: make(map[paramKey]ParamsPredicateFunc),
		orders:     make(map[paramKey]OrderFunc),
		alphabets:  make(map[domain.EntityType]Alphabet),
		relations:  make(map[relationKey]RelationFunc),
		ignored:    make(map[paramKey]struct{}),
	}
}

// Table names the table holding an entity type. Its primary key must be id.
func (r *Registry) Table(t domain.EntityType, table string) {
	r.tables[t] = table
}

// TableFor returns the table of an entity type.
func (r *Registry) TableFor(t domain.EntityType) (string, bool) {
	table, ok := r.tables[t]
	return table, ok
}

// Predicate registers the builder for one parameter.
func (r *Registry) Predicate(t domain.EntityType, param string, fn PredicateFunc) {
	r.predicates[paramKey{t, param}] = func(value any, _ map[string]any) (squirrel.Sqlizer, error) {
		return fn(value)
	}
}

// PredicateWith registers a builder that sees the sibling parameters.
func (r *Registry) PredicateWith(t domain.EntityType, param string, fn ParamsPredicateFunc) {
	r.predicates[paramKey{t, param}] = fn
}

// Alphabetical registers the title expression letter pagination uses.
func (r *Registry) Alphabetical(t domain.EntityType, title string, joins ...string) {
	r.alphabets[t] = Alphabet{Title: title, Joins: joins}
}

// Order registers the builder for one order key.
func (r *Registry) Order(t domain.EntityType, key string, fn OrderFunc) {
	r.orders[paramKey{t, key}] = fn
}

// Relation registers how nested specifications filter parent ones.
func (r *Registry) Relation(nested, parent domain.EntityType, fn RelationFunc) {
	r.relations[relationKey{nested, parent}] = fn
}

// Ignore marks parameters that carry no predicate.
func (r *Registry) Ignore(t domain.EntityType, params ...string) {
	for _, p := range params {
		r.ignored[paramKey{t, p}] = struct{}{}
	}
}

// Check verifies that every declared parameter, order key and cross-type
// subquery of every schema has an implementation.
func (r *Registry) Check(schemas *schema.Registry) error {
	for _, t := range schemas.Types() {
		s, _ := schemas.Schema(t)
		if _, ok := r.tables[t]; !ok {
			return schema.ConfigErrorf("no table registered for %s", t)
		}
		for _, key := range s.Orders {
			if _, ok := r.orders[paramKey{t, key}]; !ok {
				return schema.ConfigErrorf("no order builder for %s order %s", t, key)
			}
		}
		for _, d := range s.Declarations() {
			if err := r.checkParam(t, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) checkParam(t domain.EntityType, d schema.Declaration) error {
	key := paramKey{t, d.Name}
	if d.Name == schema.OrderParam {
		return nil
	}
	if _, ok := r.ignored[key]; ok {
		return nil
	}
	if d.Shape.Kind == schema.KindSubquery {
		if d.Shape.Target == t {
			return nil
		}
		if _, ok := r.relations[relationKey{d.Shape.Target, t}]; !ok {
			return schema.ConfigErrorf("no relation rule for %s.%s (%s inside %s)", t, d.Name, d.Shape.Target, t)
		}
		return nil
	}
	if _, ok := r.predicates[key]; !ok {
		return schema.ConfigErrorf("no predicate builder for %s.%s", t, d.Name)
	}
	return nil
}
