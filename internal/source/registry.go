package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/schema"
)

// Registry maps entities to named entrypoints.
type Registry struct {
	mu       sync.RWMutex
	dialect  dialect.Dialect
	entries  map[string]map[string]*Entrypoint
	entities map[string]*schema.EntityDef
	defaults map[string]string
}

func NewRegistry(d dialect.Dialect) *Registry {
	return &Registry{
		dialect:  d,
		entries:  make(map[string]map[string]*Entrypoint),
		entities: make(map[string]*schema.EntityDef),
		defaults: make(map[string]string),
	}
}

func (r *Registry) Dialect() dialect.Dialect { return r.dialect }

// Register adds an entrypoint named name to ent.
func (r *Registry) Register(ent *schema.EntityDef, name string, p Producer, callParameterized bool) (*Entrypoint, error) {
	if ent == nil {
		return nil, configErrorf("entrypoint %q has no entity", name)
	}
	if name == "" {
		return nil, configErrorf("entrypoint on %s has no name", ent.Name)
	}
	if p == nil {
		return nil, configErrorf("entrypoint %s.%s has no producer", ent.Name, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entities[ent.Name]; ok && prev != ent {
		return nil, configErrorf("entity %s registered twice with different definitions", ent.Name)
	}
	byName := r.entries[ent.Name]
	if byName == nil {
		byName = make(map[string]*Entrypoint)
		r.entries[ent.Name] = byName
	}
	if _, ok := byName[name]; ok {
		return nil, configErrorf("entrypoint %s.%s already registered", ent.Name, name)
	}

	e := &Entrypoint{
		Name:              name,
		Entity:            ent,
		dialect:           r.dialect,
		producer:          p,
		callParameterized: callParameterized,
	}
	byName[name] = e
	r.entities[ent.Name] = ent
	return e, nil
}

// SetDefault makes name the entrypoint Manager.Query reads from.
func (r *Registry) SetDefault(entity, name string) error {
	e, err := r.Lookup(entity, name)
	if err != nil {
		return err
	}
	if e.callParameterized {
		return configErrorf("default entrypoint %s cannot be call-parameterized", e)
	}
	r.mu.Lock()
	r.defaults[entity] = name
	r.mu.Unlock()
	return nil
}

// Default returns the default entrypoint of entity, or nil.
func (r *Registry) Default(entity string) *Entrypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.defaults[entity]
	if !ok {
		return nil
	}
	return r.entries[entity][name]
}

func (r *Registry) Lookup(entity, name string) (*Entrypoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.entries[entity]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNotFound, entity)
	}
	e, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: entrypoint %s.%s", ErrNotFound, entity, name)
	}
	return e, nil
}

// Entity returns the definition entrypoints of name were registered with.
func (r *Registry) Entity(name string) (*schema.EntityDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	return ent, ok
}

// Entities returns registered entity names, sorted.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for n := range r.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Entrypoints returns the entrypoints of entity sorted by name.
func (r *Registry) Entrypoints(entity string) []*Entrypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entrypoint, 0, len(r.entries[entity]))
	for _, e := range r.entries[entity] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every entrypoint, ordered by entity then name.
func (r *Registry) All() []*Entrypoint {
	var out []*Entrypoint
	for _, entity := range r.Entities() {
		out = append(out, r.Entrypoints(entity)...)
	}
	return out
}

// Resolve returns the descriptor entity.name yields for call.
func (r *Registry) Resolve(entity, name string, call Call) (*Descriptor, error) {
	e, err := r.Lookup(entity, name)
	if err != nil {
		return nil, err
	}
	if err := checkCallShape(e, call); err != nil {
		return nil, err
	}
	return e.Resolve(call)
}

// Query returns a builder for entity.name, calling it first when it is
// call-parameterized.
func (r *Registry) Query(entity, name string, call Call) (query.Builder, error) {
	e, err := r.Lookup(entity, name)
	if err != nil {
		return query.Builder{}, err
	}
	if err := checkCallShape(e, call); err != nil {
		return query.Builder{}, err
	}
	if !e.callParameterized {
		return e.Query()
	}
	bound, err := e.CallNamed(call.Named, call.Args...)
	if err != nil {
		return query.Builder{}, err
	}
	return bound.Query(), nil
}

// Replace swaps the contents of r with those of other. Builders created
// before the swap keep their sources.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	entries, entities, defaults := other.entries, other.entities, other.defaults
	other.mu.RUnlock()

	r.mu.Lock()
	r.entries, r.entities, r.defaults = entries, entities, defaults
	r.mu.Unlock()
}

func checkCallShape(e *Entrypoint, call Call) error {
	if !e.callParameterized && !call.empty() {
		return usageErrorf("%s is not call-parameterized", e)
	}
	return nil
}
