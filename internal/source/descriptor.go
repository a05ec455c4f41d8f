// Package source lets an entity be read from an arbitrary SQL-producing
// source instead of its physical table. A Descriptor names the source; the
// rewriter embeds it in the FROM clause of a query.Builder statement,
// reconciles its columns with the entity's declared ones, and keeps bound
// values in placeholder order.
package source

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/schema"
)

// Raw is the input of FromRaw. Exactly one of SQL and Table must be set.
//
// SQL uses "?" placeholders, one per element of Params; "??" is a literal
// question mark. Question marks inside string literals, quoted identifiers
// and comments are not placeholders. Columns optionally lists the names SQL
// produces, which lets coverage of the entity's declared columns be checked
// at bind time. When Columns is empty the SQL is opaque: Bind trusts it to
// produce every declared column that is neither translated nor null-filled,
// and a missing one only surfaces when the statement runs.
type Raw struct {
	SQL          string
	Table        string
	Params       []any
	Translations map[string]string
	NullColumns  []string
	Columns      []string
}

// Descriptor is an immutable description of one substitutable source.
type Descriptor struct {
	text         string // parenthesized SQL, or an unquoted table reference
	table        bool
	params       []any
	translations map[string]string // source column -> entity column
	nullColumns  []string

	// produced holds the column names the source emits before translation,
	// nil when unknown.
	produced []string

	// derived descriptors compute nullColumns when bound to an entity.
	derived bool
	bound   *schema.EntityDef
}

// FromRaw builds a descriptor from literal SQL or a table name.
func FromRaw(r Raw) (*Descriptor, error) {
	sqlText := strings.TrimSpace(r.SQL)
	switch {
	case sqlText == "" && r.Table == "":
		return nil, configErrorf("either raw SQL or a table name must be provided")
	case sqlText != "" && r.Table != "":
		return nil, configErrorf("either raw SQL or a table name must be provided, not both")
	case r.Table != "" && len(r.Params) > 0:
		return nil, configErrorf("table source %q takes no params", r.Table)
	}

	d := &Descriptor{
		params:       slices.Clone(r.Params),
		translations: maps.Clone(r.Translations),
		nullColumns:  dedupe(r.NullColumns),
		produced:     slices.Clone(r.Columns),
	}
	if d.translations == nil {
		d.translations = map[string]string{}
	}

	if r.Table != "" {
		d.text = r.Table
		d.table = true
	} else {
		if n := dialect.CountPlaceholders(sqlText); n != len(r.Params) {
			return nil, configErrorf("raw SQL has %d placeholders but %d params were given", n, len(r.Params))
		}
		d.text = "(" + sqlText + ")"
	}

	if err := d.checkTranslations(); err != nil {
		return nil, err
	}
	return d, nil
}

// WithParams returns a copy of d bound to new values. Translations and null
// columns are carried over without being validated again.
func (d *Descriptor) WithParams(params ...any) *Descriptor {
	clone := *d
	clone.params = slices.Clone(params)
	return &clone
}

// Text returns the source text: a parenthesized expression or a table name.
func (d *Descriptor) Text() string { return d.text }

// IsTable reports whether the descriptor names a table rather than raw SQL.
func (d *Descriptor) IsTable() bool { return d.table }

func (d *Descriptor) Params() []any { return slices.Clone(d.params) }

func (d *Descriptor) Translations() map[string]string { return maps.Clone(d.translations) }

func (d *Descriptor) NullColumns() []string { return slices.Clone(d.nullColumns) }

// ProducedColumns returns the column names the source emits, or nil when
// they are not known.
func (d *Descriptor) ProducedColumns() []string { return slices.Clone(d.produced) }

// Bind reconciles d with the declared columns of ent and returns the bound
// copy. Derived descriptors compute their null columns here.
func (d *Descriptor) Bind(ent *schema.EntityDef) (*Descriptor, error) {
	if d.bound == ent {
		return d, nil
	}
	b := *d
	b.bound = ent

	if b.derived {
		covered := make(map[string]bool, len(b.produced)+len(b.translations))
		for _, c := range b.produced {
			covered[c] = true
		}
		for _, target := range b.translations {
			covered[target] = true
		}
		b.nullColumns = nil
		for _, c := range ent.DeclaredColumns() {
			if !covered[c] {
				b.nullColumns = append(b.nullColumns, c)
			}
		}
	}

	if err := b.reconcile(ent); err != nil {
		return nil, err
	}
	return &b, nil
}

// checkTranslations enforces the entity-independent invariants: no two
// source columns translate to one target, and no target is also null-filled.
func (d *Descriptor) checkTranslations() error {
	seen := make(map[string]string, len(d.translations))
	for _, src := range sortedKeys(d.translations) {
		target := d.translations[src]
		if prev, ok := seen[target]; ok {
			return ambiguousErrorf("columns %q and %q both translate to %q", prev, src, target)
		}
		seen[target] = src
	}
	for _, c := range d.nullColumns {
		if src, ok := seen[c]; ok {
			return ambiguousErrorf("column %q is translated from %q and null-filled", c, src)
		}
	}
	return nil
}

func (d *Descriptor) reconcile(ent *schema.EntityDef) error {
	if err := d.checkTranslations(); err != nil {
		return err
	}
	for _, src := range sortedKeys(d.translations) {
		if target := d.translations[src]; !ent.HasColumn(target) {
			return mismatchErrorf("translation %q -> %q: %q is not a column of %s", src, target, target, ent.Name)
		}
	}
	for _, c := range d.nullColumns {
		if !ent.HasColumn(c) {
			return mismatchErrorf("null column %q is not a column of %s", c, ent.Name)
		}
	}
	if d.produced == nil {
		return nil
	}

	direct := make(map[string]bool, len(d.produced))
	for _, c := range d.produced {
		direct[c] = true
	}
	for _, src := range sortedKeys(d.translations) {
		target := d.translations[src]
		if src != target && direct[target] {
			return ambiguousErrorf("%s.%s is produced by the source and translated from %q", ent.Name, target, src)
		}
	}

	nulls := make(map[string]bool, len(d.nullColumns))
	for _, c := range d.nullColumns {
		nulls[c] = true
	}
	targets := make(map[string]bool, len(d.translations))
	for _, t := range d.translations {
		targets[t] = true
	}
	var missing []string
	for _, c := range ent.DeclaredColumns() {
		if !direct[c] && !targets[c] && !nulls[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return mismatchErrorf("%s columns %s are neither produced, translated nor null-filled",
			ent.Name, strings.Join(missing, ", "))
	}
	return nil
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
