package source_test

import (
	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/schema"
	"github.com/atlekbai/source_registry/internal/source"
)

func simpleModel() *schema.EntityDef {
	return schema.NewEntity("my_simple_model", "my_simple_model",
		schema.ColumnDef{Name: "id", Type: schema.ColumnInteger},
		schema.ColumnDef{Name: "name", Type: schema.ColumnText},
		schema.ColumnDef{Name: "number", Type: schema.ColumnInteger},
		schema.ColumnDef{Name: "source_id", Type: schema.ColumnInteger},
	)
}

func sourceModel() *schema.EntityDef {
	return schema.NewEntity("source_model", "source_model",
		schema.ColumnDef{Name: "id", Type: schema.ColumnInteger},
		schema.ColumnDef{Name: "label", Type: schema.ColumnText},
	)
}

// helloSource yields name from a bound value and a constant number.
func helloSource() source.Raw {
	return source.Raw{
		SQL:         "SELECT ? AS name, 111 AS number",
		Params:      []any{"hello"},
		NullColumns: []string{"id", "source_id"},
		Columns:     []string{"name", "number"},
	}
}

func pgManager(ent *schema.EntityDef) *source.Manager {
	return source.NewManager(ent, dialect.Postgres)
}
