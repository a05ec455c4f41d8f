package source

import (
	"fmt"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/schema"
)

// Manager is the read-only entry to one entity. Without a default source it
// reads the physical table.
type Manager struct {
	ent     *schema.EntityDef
	dialect dialect.Dialect
	def     *Descriptor
}

func NewManager(ent *schema.EntityDef, d dialect.Dialect) *Manager {
	return &Manager{ent: ent, dialect: d}
}

// NewRawManager returns a manager whose Query reads from def.
func NewRawManager(ent *schema.EntityDef, d dialect.Dialect, def *Descriptor) (*Manager, error) {
	bound, err := def.Bind(ent)
	if err != nil {
		return nil, err
	}
	return &Manager{ent: ent, dialect: d, def: bound}, nil
}

// ManagerFor returns the manager of entity in reg, reading from its default
// entrypoint when one is set.
func ManagerFor(reg *Registry, entity string) (*Manager, error) {
	ent, ok := reg.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNotFound, entity)
	}
	m := NewManager(ent, reg.Dialect())
	if e := reg.Default(entity); e != nil {
		d, err := e.Resolve(Call{})
		if err != nil {
			return nil, err
		}
		m.def = d
	}
	return m, nil
}

func (m *Manager) Entity() *schema.EntityDef { return m.ent }

// Query returns a builder over the default source.
func (m *Manager) Query() query.Builder {
	b := query.New(m.ent, m.dialect)
	if m.def != nil {
		b = b.From(&binding{ent: m.ent, desc: m.def})
	}
	return b
}

// Table returns a builder over the physical table, ignoring the default.
func (m *Manager) Table() query.Builder {
	return query.New(m.ent, m.dialect)
}

// FromRaw returns a builder reading from raw SQL or another table.
func (m *Manager) FromRaw(r Raw) (query.Builder, error) {
	d, err := FromRaw(r)
	if err != nil {
		return query.Builder{}, err
	}
	return m.FromSource(d)
}

// FromQuery returns a builder reading from the result of origin.
func (m *Manager) FromQuery(origin query.Builder, translations map[string]string) (query.Builder, error) {
	d, err := FromQuery(origin, translations)
	if err != nil {
		return query.Builder{}, err
	}
	return m.FromSource(d)
}

func (m *Manager) FromSource(d *Descriptor) (query.Builder, error) {
	r, err := Source(m.ent, d)
	if err != nil {
		return query.Builder{}, err
	}
	return query.New(m.ent, m.dialect).From(r), nil
}
