package schema

import (
	"sort"

	"github.com/rpattn/obsquery/internal/domain"
)

// OrderParam is the parameter every schema declares for its ordering key.
const OrderParam = "order_by"

// Declaration describes one accepted parameter of an entity type.
type Declaration struct {
	Name     string
	Required bool
	Shape    Shape
}

// Declare is shorthand for an optional Declaration.
func Declare(name string, shape Shape) Declaration {
	return Declaration{Name: name, Shape: shape}
}

// Require is shorthand for a required Declaration.
func Require(name string, shape Shape) Declaration {
	return Declaration{Name: name, Required: true, Shape: shape}
}

// Schema is the parameter table for one entity type.
type Schema struct {
	Type         domain.EntityType
	DefaultOrder string
	Orders       []string

	decls []Declaration
	index map[string]int
	dups  []string
}

// New creates a Schema. The order_by declaration is derived from orders and
// must not be passed explicitly.
func New(entityType domain.EntityType, defaultOrder string, orders []string, decls ...Declaration) *Schema {
	s := &Schema{
		Type:         entityType,
		DefaultOrder: defaultOrder,
		Orders:       append([]string(nil), orders...),
		index:        make(map[string]int),
	}
	s.add(Declare(OrderParam, StringEnum(orders...)))
	for _, d := range decls {
		s.add(d)
	}
	return s
}

func (s *Schema) add(d Declaration) {
	if _, ok := s.index[d.Name]; ok {
		s.dups = append(s.dups, d.Name)
		return
	}
	s.index[d.Name] = len(s.decls)
	s.decls = append(s.decls, d)
}

// Lookup returns the declaration for a parameter name.
func (s *Schema) Lookup(name string) (Declaration, bool) {
	i, ok := s.index[name]
	if !ok {
		return Declaration{}, false
	}
	return s.decls[i], true
}

// Declarations returns the declarations sorted by name.
func (s *Schema) Declarations() []Declaration {
	out := append([]Declaration(nil), s.decls...)
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Names returns the declared parameter names, sorted.
func (s *Schema) Names() []string {
	decls := s.Declarations()
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	return names
}

// HasOrder reports whether key is one of the schema's order keys.
func (s *Schema) HasOrder(key string) bool {
	for _, o := range s.Orders {
		if o == key {
			return true
		}
	}
	return false
}

func (s *Schema) check() error {
	if s.Type == "" {
		return configErrorf("schema without entity type")
	}
	if len(s.dups) > 0 {
		return configErrorf("%s: duplicate parameter declaration %s", s.Type, s.dups[0])
	}
	if len(s.Orders) == 0 {
		return configErrorf("%s: no order keys declared", s.Type)
	}
	if !s.HasOrder(s.DefaultOrder) {
		return configErrorf("%s: default order %q is not a declared order key", s.Type, s.DefaultOrder)
	}
	for _, d := range s.decls {
		if d.Name == "" {
			return configErrorf("%s: declaration without name", s.Type)
		}
		if err := d.Shape.check(string(s.Type) + "." + d.Name); err != nil {
			return err
		}
	}
	return nil
}
