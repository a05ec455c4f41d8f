package source

import (
	"slices"
	"strings"

	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/schema"
)

// wrapperAlias names the source inside the reconciling subquery.
const wrapperAlias = "_wrapper"

// Statement is the rewritten FROM reference for one entity.
type Statement struct {
	// From replaces "<table> AS <entity>" in the outer statement.
	From string
	// SelectList is the wrapper's projection, one item per declared column
	// in declaration order. Empty on the fast path.
	SelectList []query.SelectItem
	// Params are bound to the placeholders inside From.
	Params []any
}

// Rewrite substitutes d for the physical table referenced by from.
//
// When d needs no reconciliation the source text is aliased directly as the
// entity. Otherwise it is wrapped in a subquery that selects every declared
// column: translated columns are renamed, null columns are NULL literals and
// the rest pass through.
func Rewrite(from query.FromClause, d *Descriptor) (*Statement, error) {
	ent := from.Entity
	q := from.Quote
	if q == nil {
		q = schema.QuoteIdent
	}

	b, err := d.Bind(ent)
	if err != nil {
		return nil, err
	}

	src := b.text
	if b.table {
		src = quoteRef(b.text, q)
	}

	if len(b.translations) == 0 && len(b.nullColumns) == 0 {
		return &Statement{
			From:   src + " AS " + q(from.Alias),
			Params: slices.Clone(b.params),
		}, nil
	}

	items := b.selectList(ent, q)
	cols := make([]string, len(items))
	for i, it := range items {
		cols[i] = it.SQL(q)
	}

	var sb strings.Builder
	sb.WriteString("(SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(src)
	sb.WriteString(" AS ")
	sb.WriteString(q(wrapperAlias))
	sb.WriteString(") AS ")
	sb.WriteString(q(from.Alias))

	return &Statement{
		From:       sb.String(),
		SelectList: items,
		Params:     slices.Clone(b.params),
	}, nil
}

func (d *Descriptor) selectList(ent *schema.EntityDef, q schema.Quoter) []query.SelectItem {
	inverse := make(map[string]string, len(d.translations))
	for src, target := range d.translations {
		inverse[target] = src
	}
	nulls := make(map[string]bool, len(d.nullColumns))
	for _, c := range d.nullColumns {
		nulls[c] = true
	}

	wrapper := q(wrapperAlias)
	declared := ent.DeclaredColumns()
	items := make([]query.SelectItem, 0, len(declared))
	for _, c := range declared {
		switch src, translated := inverse[c]; {
		case nulls[c]:
			items = append(items, query.SelectItem{Expr: "NULL", Alias: c})
		case translated:
			items = append(items, query.SelectItem{Expr: wrapper + "." + q(src), Alias: c})
		default:
			items = append(items, query.SelectItem{Expr: wrapper + "." + q(c), Alias: c})
		}
	}
	return items
}

func quoteRef(ref string, q schema.Quoter) string {
	parts := strings.Split(ref, ".")
	for i, p := range parts {
		parts[i] = q(p)
	}
	return strings.Join(parts, ".")
}
