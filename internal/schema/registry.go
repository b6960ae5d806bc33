package schema

import (
	"sort"
	"sync"

	"github.com/rpattn/obsquery/internal/domain"
)

type relation struct {
	nested domain.EntityType
	parent domain.EntityType
}

// Registry holds every entity type's Schema plus the relatability table.
// It is populated once and frozen; lookups after Freeze need no locking.
type Registry struct {
	mu        sync.RWMutex
	frozen    bool
	schemas   map[domain.EntityType]*Schema
	relatable map[relation]struct{}
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[domain.EntityType]*Schema),
		relatable: make(map[relation]struct{}),
	}
}

// Register adds a schema. Registering an entity type twice, or registering
// after Freeze, is a configuration error.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return configErrorf("registry is frozen, cannot register %s", s.Type)
	}
	if _, exists := r.schemas[s.Type]; exists {
		return configErrorf("duplicate schema registration for %s", s.Type)
	}
	if err := s.check(); err != nil {
		return err
	}
	r.schemas[s.Type] = s
	return nil
}

// AllowRelation declares that specifications of nested may filter
// specifications of parent.
func (r *Registry) AllowRelation(nested, parent domain.EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return configErrorf("registry is frozen, cannot relate %s to %s", nested, parent)
	}
	r.relatable[relation{nested: nested, parent: parent}] = struct{}{}
	return nil
}

// Freeze cross-checks the registry and makes it read-only. Every reference
// must target a registered type and every subquery declaration must have a
// relatability entry (same-type nesting is always relatable).
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}
	for _, t := range r.typesLocked() {
		s := r.schemas[t]
		for _, d := range s.Declarations() {
			for _, target := range d.Shape.Targets() {
				if _, ok := r.schemas[target]; !ok {
					return configErrorf("%s.%s references unregistered entity type %s", t, d.Name, target)
				}
			}
			if d.Shape.Kind == KindSubquery && !r.relatableLocked(d.Shape.Target, t) {
				return configErrorf("%s.%s: no relatability rule for %s inside %s", t, d.Name, d.Shape.Target, t)
			}
		}
	}
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has completed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Schema returns the schema for an entity type.
func (r *Registry) Schema(t domain.EntityType) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	return s, ok
}

// Relatable reports whether nested may filter parent.
func (r *Registry) Relatable(nested, parent domain.EntityType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relatableLocked(nested, parent)
}

func (r *Registry) relatableLocked(nested, parent domain.EntityType) bool {
	if nested == parent {
		return true
	}
	_, ok := r.relatable[relation{nested: nested, parent: parent}]
	return ok
}

// Types returns the registered entity types, sorted.
func (r *Registry) Types() []domain.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typesLocked()
}

func (r *Registry) typesLocked() []domain.EntityType {
	types := make([]domain.EntityType, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
