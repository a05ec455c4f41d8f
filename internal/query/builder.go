package query

import (
	"errors"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/schema"
)

// ErrNoSource is returned by WithParams on a builder whose entity is read
// from its physical table.
var ErrNoSource = errors.New("builder has no substituted source")

type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
	CrossJoin JoinKind = "CROSS JOIN"
)

type joinClause struct {
	kind  JoinKind
	table string // already quoted
	alias string
	on    string
	args  []any
	sub   *Builder
}

// Builder composes a SELECT over one entity. It is a value type: every
// method returns a modified copy and leaves the receiver untouched, so a
// builder can be forked freely.
type Builder struct {
	ent     *schema.EntityDef
	dialect dialect.Dialect
	alias   string

	columns     []string
	annotations []SelectItem
	joins       []joinClause
	where       []sq.Sqlizer
	groupBy     []string
	having      []sq.Sqlizer
	orderBy     []string
	limit       uint64
	offset      uint64
	hasLimit    bool
	hasOffset   bool
	distinct    bool

	rewriter FromClauseRewriter
	err      error
}

// New returns a builder reading ent as if it were a real table.
func New(ent *schema.EntityDef, d dialect.Dialect) Builder {
	return Builder{
		ent:     ent,
		dialect: d,
		alias:   ent.Name,
	}
}

func (b Builder) Entity() *schema.EntityDef { return b.ent }

func (b Builder) Dialect() dialect.Dialect { return b.dialect }

func (b Builder) Alias() string { return b.alias }

// Source returns the substituted source, or nil for a plain table read.
func (b Builder) Source() FromClauseRewriter { return b.rewriter }

// Col returns the qualified, quoted reference to a column of the entity.
func (b Builder) Col(name string) string {
	q := b.dialect.QuoteIdent
	return q(b.alias) + "." + q(name)
}

// From substitutes r for the entity's physical table at compile time.
func (b Builder) From(r FromClauseRewriter) Builder {
	b.rewriter = r
	return b
}

// WithParams replaces the bound values of the substituted source without
// rebuilding the rest of the query. Any source that carries bound values can
// be rebound this way, including raw and direct sources registered eagerly:
// their params are defaults, and an entrypoint builder is a starting point
// the caller is free to re-parameterize.
func (b Builder) WithParams(values ...any) (Builder, error) {
	rb, ok := b.rewriter.(Rebinder)
	if !ok {
		return b, ErrNoSource
	}
	r, err := rb.Rebind(values...)
	if err != nil {
		return b, err
	}
	b.rewriter = r
	return b, nil
}

// Select restricts the projection to the named declared columns.
func (b Builder) Select(columns ...string) Builder {
	for _, c := range columns {
		if !b.ent.HasColumn(c) {
			return b.fail(fmt.Errorf("unknown column %q in select on %s", c, b.ent.Name))
		}
	}
	b.columns = append(slices.Clip(b.columns), columns...)
	return b
}

// Annotate adds a computed output column.
func (b Builder) Annotate(alias, expr string, args ...any) Builder {
	b.annotations = append(slices.Clip(b.annotations), SelectItem{Expr: expr, Alias: alias, Args: args})
	return b
}

func (b Builder) Distinct() Builder {
	b.distinct = true
	return b
}

// Where adds a predicate, AND'ed with the others.
func (b Builder) Where(pred sq.Sqlizer) Builder {
	b.where = append(slices.Clip(b.where), pred)
	return b
}

// Exclude adds a negated predicate.
func (b Builder) Exclude(pred sq.Sqlizer) Builder {
	return b.Where(notExpr{pred})
}

// Filter adds a column filter in the op.value vocabulary.
func (b Builder) Filter(f Filter) Builder {
	if !b.ent.HasColumn(f.Column) {
		return b.fail(fmt.Errorf("unknown filter column %q on %s", f.Column, b.ent.Name))
	}
	return b.Where(filterCondition(b.Col(f.Column), f))
}

// Join joins a physical table. table may be schema-qualified.
func (b Builder) Join(kind JoinKind, table, alias, on string, args ...any) Builder {
	j := joinClause{
		kind:  kind,
		table: b.dialect.QuoteRef(table),
		alias: alias,
		on:    on,
		args:  args,
	}
	b.joins = append(slices.Clip(b.joins), j)
	return b
}

// JoinQuery joins the result of another builder, which may itself read from
// a substituted source. It is aliased with the other entity's name.
func (b Builder) JoinQuery(kind JoinKind, other Builder, on string, args ...any) Builder {
	j := joinClause{
		kind:  kind,
		alias: other.alias,
		on:    on,
		args:  args,
		sub:   &other,
	}
	b.joins = append(slices.Clip(b.joins), j)
	return b
}

func (b Builder) GroupBy(columns ...string) Builder {
	for _, c := range columns {
		if !b.ent.HasColumn(c) {
			return b.fail(fmt.Errorf("unknown column %q in group by on %s", c, b.ent.Name))
		}
		b.groupBy = append(slices.Clip(b.groupBy), b.Col(c))
	}
	return b
}

func (b Builder) Having(pred sq.Sqlizer) Builder {
	b.having = append(slices.Clip(b.having), pred)
	return b
}

// OrderBy orders by a declared column or an annotation alias.
func (b Builder) OrderBy(column string, desc bool) Builder {
	var expr string
	switch {
	case b.ent.HasColumn(column):
		expr = b.Col(column)
	case b.hasAnnotation(column):
		expr = b.dialect.QuoteIdent(column)
	default:
		return b.fail(fmt.Errorf("unknown column %q in order by on %s", column, b.ent.Name))
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	b.orderBy = append(slices.Clip(b.orderBy), expr+" "+dir)
	return b
}

func (b Builder) Limit(n uint64) Builder {
	b.limit, b.hasLimit = n, true
	return b
}

func (b Builder) Offset(n uint64) Builder {
	b.offset, b.hasOffset = n, true
	return b
}

// ProducedColumns lists the output column names of the statement: the
// explicit projection (or every declared column) followed by annotations.
func (b Builder) ProducedColumns() []string {
	var cols []string
	if len(b.columns) > 0 {
		cols = slices.Clone(b.columns)
	} else {
		cols = b.ent.DeclaredColumns()
	}
	for _, a := range b.annotations {
		cols = append(cols, a.Alias)
	}
	return cols
}

// Err returns the first error recorded while building.
func (b Builder) Err() error { return b.err }

// ToSql compiles the statement with the dialect's placeholder format.
func (b Builder) ToSql() (string, []any, error) {
	return b.ToSqlFormat(b.dialect.Placeholder)
}

// ToSqlFormat compiles the statement with the given placeholder format. A
// nil format leaves the canonical "?" placeholders in place, which is what
// nested statements must use.
func (b Builder) ToSqlFormat(format sq.PlaceholderFormat) (string, []any, error) {
	sqlStr, args, err := b.compile(false)
	if err != nil {
		return "", nil, err
	}
	return finish(sqlStr, args, format)
}

// CountSql compiles SELECT count(*) over the rows the statement would return.
func (b Builder) CountSql() (string, []any, error) {
	if len(b.groupBy) > 0 || b.distinct || b.hasLimit || b.hasOffset {
		inner, args, err := b.compile(false)
		if err != nil {
			return "", nil, err
		}
		outer := fmt.Sprintf(`SELECT count(*) FROM (%s) AS %s`, inner, b.dialect.QuoteIdent("_count"))
		return finish(outer, args, b.dialect.Placeholder)
	}
	sqlStr, args, err := b.compile(true)
	if err != nil {
		return "", nil, err
	}
	return finish(sqlStr, args, b.dialect.Placeholder)
}

func finish(sqlStr string, args []any, format sq.PlaceholderFormat) (string, []any, error) {
	if format == nil {
		return sqlStr, args, nil
	}
	sqlStr, n, err := dialect.ReplacePlaceholders(sqlStr, format)
	if err != nil {
		return "", nil, fmt.Errorf("placeholders: %w", err)
	}
	if n != len(args) {
		return "", nil, fmt.Errorf("statement has %d placeholders but %d args", n, len(args))
	}
	return sqlStr, args, nil
}

// compile renders the statement with "?" placeholders. Args come back in
// the left-to-right order of their placeholders in the text.
func (b Builder) compile(count bool) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	q := b.dialect.QuoteIdent

	items := b.selectList()
	if count {
		items = []SelectItem{{Expr: "count(*)"}}
	}

	from := FromClause{
		Entity: b.ent,
		Table:  b.ent.TableRef(q),
		Alias:  b.alias,
		Quote:  q,
	}
	from.SQL = from.Table + " AS " + q(b.alias)

	if b.rewriter != nil {
		var err error
		from, err = b.rewriter.RewriteFrom(from)
		if err != nil {
			return "", nil, err
		}
		if sr, ok := b.rewriter.(SelectListRewriter); ok && !count {
			items, err = sr.RewriteSelect(from, items)
			if err != nil {
				return "", nil, err
			}
		}
	}

	qb := sq.Select().PlaceholderFormat(sq.Question)
	if b.distinct && !count {
		qb = qb.Distinct()
	}

	// Everything rendered before FROM contributes args ahead of the source.
	var before int
	for _, it := range items {
		qb = qb.Column(it.SQL(q), it.Args...)
		before += len(it.Args)
	}
	qb = qb.From(from.SQL)

	for _, j := range b.joins {
		joinSQL, joinArgs, err := j.render(q)
		if err != nil {
			return "", nil, err
		}
		qb = qb.JoinClause(joinSQL, joinArgs...)
	}
	for _, pred := range b.where {
		qb = qb.Where(pred)
	}
	if len(b.groupBy) > 0 {
		qb = qb.GroupBy(b.groupBy...)
	}
	for _, pred := range b.having {
		qb = qb.Having(pred)
	}
	if !count {
		if len(b.orderBy) > 0 {
			qb = qb.OrderBy(b.orderBy...)
		}
		if b.hasLimit {
			qb = qb.Limit(b.limit)
		}
		if b.hasOffset {
			qb = qb.Offset(b.offset)
		}
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("compile %s: %w", b.ent.Name, err)
	}
	return sqlStr, spliceArgs(args, before, from.Args), nil
}

func (b Builder) selectList() []SelectItem {
	var cols []string
	if len(b.columns) > 0 {
		cols = b.columns
	} else {
		cols = b.ent.DeclaredColumns()
	}
	items := make([]SelectItem, 0, len(cols)+len(b.annotations))
	for _, c := range cols {
		items = append(items, SelectItem{Expr: b.Col(c), Alias: c})
	}
	return append(items, b.annotations...)
}

func (b Builder) hasAnnotation(alias string) bool {
	for _, a := range b.annotations {
		if a.Alias == alias {
			return true
		}
	}
	return false
}

func (b Builder) fail(err error) Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (j joinClause) render(q schema.Quoter) (string, []any, error) {
	var (
		target string
		args   []any
	)
	if j.sub != nil {
		subSQL, subArgs, err := j.sub.ToSqlFormat(nil)
		if err != nil {
			return "", nil, fmt.Errorf("join %s: %w", j.alias, err)
		}
		target = "(" + subSQL + ") AS " + q(j.alias)
		args = subArgs
	} else {
		target = j.table
		if j.alias != "" {
			target += " AS " + q(j.alias)
		}
	}
	if j.kind == CrossJoin || j.on == "" {
		return fmt.Sprintf("%s %s", j.kind, target), args, nil
	}
	return fmt.Sprintf("%s %s ON %s", j.kind, target, j.on), append(args, j.args...), nil
}

// spliceArgs inserts ins at position at, keeping placeholder order intact.
func spliceArgs(args []any, at int, ins []any) []any {
	if len(ins) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(ins))
	out = append(out, args[:at]...)
	out = append(out, ins...)
	return append(out, args[at:]...)
}

type notExpr struct{ pred sq.Sqlizer }

func (n notExpr) ToSql() (string, []any, error) {
	sqlStr, args, err := n.pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sqlStr + ")", args, nil
}
