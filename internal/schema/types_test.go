package schema

import (
	"testing"
)

func testEntity() *EntityDef {
	ent := NewEntity("my_simple_model", "my_simple_model",
		ColumnDef{Name: "id", Type: ColumnInteger},
		ColumnDef{Name: "name", Type: ColumnText},
		ColumnDef{Name: "number", Type: ColumnInteger},
		ColumnDef{Name: "source_id", Type: ColumnInteger, Nullable: true},
	)
	return ent
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"name", `"name"`},
		{"Mixed", `"Mixed"`},
		{"order", `"order"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, tt := range tests {
		if got := QuoteIdent(tt.in); got != tt.want {
			t.Errorf("QuoteIdent(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestDeclaredColumnsOrder(t *testing.T) {
	ent := testEntity()
	got := ent.DeclaredColumns()
	want := []string{"id", "name", "number", "source_id"}
	if len(got) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if ent.ColumnsByName["number"].Position != 3 {
		t.Fatalf("expected number at position 3, got %d", ent.ColumnsByName["number"].Position)
	}
}

func TestTableRef(t *testing.T) {
	ent := testEntity()
	if got := ent.TableName(); got != `"my_simple_model"` {
		t.Fatalf("unexpected table name %q", got)
	}

	ent.Schema = "core"
	if got := ent.TableName(); got != `"core"."my_simple_model"` {
		t.Fatalf("unexpected qualified table name %q", got)
	}

	backtick := func(s string) string { return "`" + s + "`" }
	if got := ent.TableRef(backtick); got != "`core`.`my_simple_model`" {
		t.Fatalf("unexpected mysql table name %q", got)
	}
}

func TestCachePutReplaces(t *testing.T) {
	first := testEntity()
	c := NewCacheFromEntities(first)
	if c.EntityCount() != 1 {
		t.Fatalf("expected 1 entity, got %d", c.EntityCount())
	}

	second := testEntity()
	c.Put(second)

	if c.EntityCount() != 1 {
		t.Fatalf("expected 1 entity after replace, got %d", c.EntityCount())
	}
	if c.Get("my_simple_model") != second {
		t.Fatal("expected replaced entity")
	}
	if c.GetByID(first.ID) != nil {
		t.Fatal("stale id index entry")
	}
	if c.GetByID(second.ID) != second {
		t.Fatal("expected lookup by id")
	}
}

func TestColumnTypeOf(t *testing.T) {
	tests := map[string]ColumnType{
		"text":                     ColumnText,
		"bigint":                   ColumnInteger,
		"double precision":         ColumnNumeric,
		"timestamp with time zone": ColumnTimestamp,
		"jsonb":                    ColumnJSON,
		"tsvector":                 ColumnOther,
	}
	for in, want := range tests {
		if got := ColumnTypeOf(in); got != want {
			t.Errorf("ColumnTypeOf(%q): expected %s, got %s", in, want, got)
		}
	}
}
