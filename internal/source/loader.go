package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/schema"
)

// File is the sources file: optional entity declarations and the
// entrypoints registered on them.
type File struct {
	// Entities declares or overrides catalog entities.
	Entities []EntitySpec `yaml:"entities,omitempty"`

	// Sources lists entrypoints in registration order. A derived source may
	// only reference entrypoints listed before it.
	Sources []SourceSpec `yaml:"sources"`
}

type EntitySpec struct {
	Name    string       `yaml:"name"`
	Schema  string       `yaml:"schema,omitempty"`
	Table   string       `yaml:"table,omitempty"`
	Columns []ColumnSpec `yaml:"columns"`
}

type ColumnSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// SourceSpec is one entrypoint. Exactly one of SQL, Table and Query is set.
type SourceSpec struct {
	Entity  string `yaml:"entity"`
	Name    string `yaml:"name"`
	Default bool   `yaml:"default,omitempty"`

	SQL   string     `yaml:"sql,omitempty"`
	Table string     `yaml:"table,omitempty"`
	Query *QuerySpec `yaml:"query,omitempty"`

	// Args names the call arguments of a call-parameterized raw source.
	Args []string `yaml:"args,omitempty"`
	// Params are fixed values for the placeholders of an eager raw source.
	Params []any `yaml:"params,omitempty"`

	Columns      []string          `yaml:"columns,omitempty"`
	NullColumns  []string          `yaml:"null_columns,omitempty"`
	Translations map[string]string `yaml:"translations,omitempty"`
}

// QuerySpec describes the origin query of a derived source.
type QuerySpec struct {
	Entity string `yaml:"entity"`
	// Source reads the origin entity from one of its eager entrypoints
	// instead of its table.
	Source   string            `yaml:"source,omitempty"`
	Select   []string          `yaml:"select,omitempty"`
	Annotate []AnnotationSpec  `yaml:"annotate,omitempty"`
	Filters  map[string]string `yaml:"filters,omitempty"`
	GroupBy  []string          `yaml:"group_by,omitempty"`
	Order    string            `yaml:"order,omitempty"`
	Limit    uint64            `yaml:"limit,omitempty"`
	Distinct bool              `yaml:"distinct,omitempty"`
}

// AnnotationSpec is either an aggregate over a column (func + column) or a
// literal SQL expression.
type AnnotationSpec struct {
	Alias  string `yaml:"alias"`
	Func   string `yaml:"func,omitempty"`
	Column string `yaml:"column,omitempty"`
	Expr   string `yaml:"expr,omitempty"`
}

var aggregates = map[string]bool{
	"count": true,
	"sum":   true,
	"min":   true,
	"max":   true,
	"avg":   true,
}

// ParseFile decodes a sources file, rejecting unknown fields.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, configErrorf("parse sources file: %v", err)
	}
	return &f, nil
}

// LoadRegistry reads the sources file at path and builds a registry over
// the entities of cache. Entities declared in the file are put into cache.
func LoadRegistry(fsys afero.Fs, path string, cache *schema.Cache, d dialect.Dialect) (*Registry, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reg, err := f.Build(cache, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Build registers every source of f. All eager sources are resolved once so
// that configuration errors surface here rather than at first query.
func (f *File) Build(cache *schema.Cache, d dialect.Dialect) (*Registry, error) {
	if cache == nil {
		cache = schema.NewCache()
	}
	for _, es := range f.Entities {
		ent, err := es.entity()
		if err != nil {
			return nil, err
		}
		cache.Put(ent)
	}

	reg := NewRegistry(d)
	for i, ss := range f.Sources {
		ent := cache.Get(ss.Entity)
		if ent == nil {
			return nil, configErrorf("sources[%d]: unknown entity %q", i, ss.Entity)
		}
		producer, parameterized, err := ss.producer(reg, cache, ent)
		if err != nil {
			return nil, fmt.Errorf("sources[%d] %s.%s: %w", i, ss.Entity, ss.Name, err)
		}
		e, err := reg.Register(ent, ss.Name, producer, parameterized)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if !parameterized {
			if _, err := e.Resolve(Call{}); err != nil {
				return nil, fmt.Errorf("sources[%d]: %w", i, err)
			}
		}
		if ss.Default {
			if err := reg.SetDefault(ent.Name, ss.Name); err != nil {
				return nil, fmt.Errorf("sources[%d]: %w", i, err)
			}
		}
	}
	return reg, nil
}

func (es EntitySpec) entity() (*schema.EntityDef, error) {
	if es.Name == "" {
		return nil, configErrorf("entity without a name")
	}
	if len(es.Columns) == 0 {
		return nil, configErrorf("entity %s declares no columns", es.Name)
	}
	table := es.Table
	if table == "" {
		table = es.Name
	}
	ent := schema.NewEntity(es.Name, table)
	ent.Schema = es.Schema
	for _, c := range es.Columns {
		if ent.HasColumn(c.Name) {
			return nil, configErrorf("entity %s declares column %q twice", es.Name, c.Name)
		}
		ent.AddColumn(schema.ColumnDef{
			Name:     c.Name,
			Type:     schema.ColumnTypeOf(strings.ToLower(c.Type)),
			Nullable: c.Nullable,
		})
	}
	return ent, nil
}

func (ss SourceSpec) producer(reg *Registry, cache *schema.Cache, ent *schema.EntityDef) (Producer, bool, error) {
	modes := 0
	for _, set := range []bool{ss.SQL != "", ss.Table != "", ss.Query != nil} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, false, configErrorf("exactly one of sql, table and query must be set")
	}

	raw := Raw{
		SQL:          ss.SQL,
		Table:        ss.Table,
		Params:       ss.Params,
		Translations: ss.Translations,
		NullColumns:  ss.NullColumns,
		Columns:      ss.Columns,
	}

	switch {
	case len(ss.Args) > 0:
		if ss.SQL == "" {
			return nil, false, configErrorf("args require a sql source")
		}
		if len(ss.Params) > 0 {
			return nil, false, configErrorf("args and params are mutually exclusive")
		}
		p, err := Parameterized(raw, ss.Args...)
		if err != nil {
			return nil, false, err
		}
		// Check the shape against the entity with placeholder values.
		trial := raw
		trial.Params = make([]any, len(ss.Args))
		d, err := FromRaw(trial)
		if err != nil {
			return nil, false, err
		}
		if _, err := d.Bind(ent); err != nil {
			return nil, false, err
		}
		return p, true, nil

	case ss.Query != nil:
		if len(ss.NullColumns) > 0 || len(ss.Columns) > 0 || len(ss.Params) > 0 {
			return nil, false, configErrorf("derived sources compute their columns; drop columns, null_columns and params")
		}
		origin, err := ss.Query.builder(reg, cache)
		if err != nil {
			return nil, false, err
		}
		d, err := FromQuery(origin, ss.Translations)
		if err != nil {
			return nil, false, err
		}
		return Fixed(d), false, nil

	default:
		d, err := FromRaw(raw)
		if err != nil {
			return nil, false, err
		}
		return Fixed(d), false, nil
	}
}

func (qs *QuerySpec) builder(reg *Registry, cache *schema.Cache) (query.Builder, error) {
	var b query.Builder
	if qs.Source != "" {
		var err error
		b, err = reg.Query(qs.Entity, qs.Source, Call{})
		if err != nil {
			return query.Builder{}, err
		}
	} else {
		ent := cache.Get(qs.Entity)
		if ent == nil {
			return query.Builder{}, configErrorf("query: unknown entity %q", qs.Entity)
		}
		b = query.New(ent, reg.Dialect())
	}

	if len(qs.Select) > 0 {
		b = b.Select(qs.Select...)
	}
	for _, a := range qs.Annotate {
		expr, err := a.expr(b)
		if err != nil {
			return query.Builder{}, err
		}
		b = b.Annotate(a.Alias, expr)
	}
	for _, col := range sortedKeys(qs.Filters) {
		f, err := query.ColumnFilter(b.Entity(), col, qs.Filters[col])
		if err != nil {
			return query.Builder{}, configErrorf("query: %v", err)
		}
		b = b.Filter(f)
	}
	if len(qs.GroupBy) > 0 {
		b = b.GroupBy(qs.GroupBy...)
	}
	if qs.Order != "" {
		col, dir, _ := strings.Cut(qs.Order, ".")
		b = b.OrderBy(col, strings.EqualFold(dir, "desc"))
	}
	if qs.Limit > 0 {
		b = b.Limit(qs.Limit)
	}
	if qs.Distinct {
		b = b.Distinct()
	}
	if err := b.Err(); err != nil {
		return query.Builder{}, configErrorf("query: %v", err)
	}
	return b, nil
}

func (a AnnotationSpec) expr(b query.Builder) (string, error) {
	if a.Alias == "" {
		return "", configErrorf("annotation without an alias")
	}
	if a.Expr != "" {
		if a.Func != "" || a.Column != "" {
			return "", configErrorf("annotation %s: expr excludes func and column", a.Alias)
		}
		return a.Expr, nil
	}
	fn := strings.ToLower(a.Func)
	if !aggregates[fn] {
		return "", configErrorf("annotation %s: unknown aggregate %q", a.Alias, a.Func)
	}
	if a.Column == "" {
		if fn != "count" {
			return "", configErrorf("annotation %s: %s needs a column", a.Alias, fn)
		}
		return "count(*)", nil
	}
	if !b.Entity().HasColumn(a.Column) {
		return "", configErrorf("annotation %s: unknown column %q", a.Alias, a.Column)
	}
	return fn + "(" + b.Col(a.Column) + ")", nil
}
