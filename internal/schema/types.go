package schema

import (
	"strings"

	"github.com/google/uuid"
)

// QuoteIdent quotes a SQL identifier, escaping embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Quoter renders an identifier the way a SQL dialect expects it.
type Quoter func(name string) string

type ColumnType string

const (
	ColumnText      ColumnType = "TEXT"
	ColumnInteger   ColumnType = "INTEGER"
	ColumnNumeric   ColumnType = "NUMERIC"
	ColumnBoolean   ColumnType = "BOOLEAN"
	ColumnDate      ColumnType = "DATE"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnUUID      ColumnType = "UUID"
	ColumnJSON      ColumnType = "JSON"
	ColumnOther     ColumnType = "OTHER"
)

type ColumnDef struct {
	ID       uuid.UUID
	EntityID uuid.UUID
	Name     string
	Type     ColumnType
	Nullable bool
	Position int
}

// IsNumeric returns true if the column holds numbers.
func (c *ColumnDef) IsNumeric() bool {
	return c.Type == ColumnInteger || c.Type == ColumnNumeric
}

// EntityDef is a logical relation with a fixed, ordered column set. It is
// normally backed by Schema.Table, but queries may substitute another source.
type EntityDef struct {
	ID            uuid.UUID
	Name          string
	Schema        string
	Table         string
	Columns       []ColumnDef
	ColumnsByName map[string]*ColumnDef
}

// NewEntity builds an entity with the given columns in declared order.
func NewEntity(name, table string, columns ...ColumnDef) *EntityDef {
	ent := &EntityDef{
		ID:    uuid.New(),
		Name:  name,
		Table: table,
	}
	for _, c := range columns {
		ent.AddColumn(c)
	}
	return ent
}

// AddColumn appends a column and keeps ColumnsByName in sync.
func (e *EntityDef) AddColumn(c ColumnDef) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.EntityID = e.ID
	c.Position = len(e.Columns) + 1
	e.Columns = append(e.Columns, c)
	e.reindex()
}

func (e *EntityDef) reindex() {
	e.ColumnsByName = make(map[string]*ColumnDef, len(e.Columns))
	for i := range e.Columns {
		e.ColumnsByName[e.Columns[i].Name] = &e.Columns[i]
	}
}

// DeclaredColumns returns the column names in declared order.
func (e *EntityDef) DeclaredColumns() []string {
	names := make([]string, len(e.Columns))
	for i := range e.Columns {
		names[i] = e.Columns[i].Name
	}
	return names
}

// HasColumn reports whether name is a declared column.
func (e *EntityDef) HasColumn(name string) bool {
	_, ok := e.ColumnsByName[name]
	return ok
}

// TableRef returns the quoted, optionally schema-qualified physical table name.
func (e *EntityDef) TableRef(q Quoter) string {
	if q == nil {
		q = QuoteIdent
	}
	if e.Schema != "" {
		return q(e.Schema) + "." + q(e.Table)
	}
	return q(e.Table)
}

// TableName returns the fully qualified table name quoted with QuoteIdent.
func (e *EntityDef) TableName() string {
	return e.TableRef(QuoteIdent)
}
