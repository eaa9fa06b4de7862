package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pay-theory/dynaquery/pkg/errors"
)

// Registry manages registered entities
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	tables   map[string][]*Entity
}

// NewRegistry creates a new entity registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		tables:   make(map[string][]*Entity),
	}
}

// Register initializes and registers entities. Registering a name twice is an error.
func (r *Registry) Register(entities ...*Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entities {
		if e == nil {
			return fmt.Errorf("%w: nil entity", errors.ErrInvalidEntity)
		}
		if _, exists := r.entities[e.Name]; exists {
			return fmt.Errorf("%w: %s already registered", errors.ErrInvalidEntity, e.Name)
		}
		if err := e.Init(); err != nil {
			return err
		}
		r.entities[e.Name] = e
		r.tables[e.Table] = append(r.tables[e.Table], e)
	}
	return nil
}

// Get retrieves an entity by name
func (r *Registry) Get(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEntity, name)
	}
	return e, nil
}

// ByTable returns the entities stored in table, in registration order.
func (r *Registry) ByTable(table string) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entity, len(r.tables[table]))
	copy(out, r.tables[table])
	return out
}

// Names returns registered entity names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entities))
	for name := range r.entities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AttributeMetadata returns the metadata of one attribute of a registered entity.
func (r *Registry) AttributeMetadata(entity, path string) (Attribute, bool) {
	e, err := r.Get(entity)
	if err != nil {
		return Attribute{}, false
	}
	return e.Attribute(path)
}
