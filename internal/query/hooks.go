package query

import (
	"strings"

	"github.com/atlekbai/source_registry/internal/schema"
)

// SelectItem is one output column: an expression, its alias, and the values
// bound to placeholders inside the expression.
type SelectItem struct {
	Expr  string
	Alias string
	Args  []any
}

// SQL renders the item. The alias is omitted when the expression is already
// a qualified reference to a column of the same name.
func (it SelectItem) SQL(q schema.Quoter) string {
	if it.Alias == "" || strings.HasSuffix(it.Expr, "."+q(it.Alias)) {
		return it.Expr
	}
	return it.Expr + " AS " + q(it.Alias)
}

// FromClause is the FROM reference the builder computed for its entity as a
// plain table, handed to a FromClauseRewriter before the statement is
// finalized.
type FromClause struct {
	Entity *schema.EntityDef
	Table  string // quoted physical table reference
	Alias  string // unquoted name the statement qualifies columns with
	Quote  schema.Quoter

	SQL  string
	Args []any // bound to placeholders inside SQL
}

// FromClauseRewriter replaces the FROM reference of a statement. The returned
// clause must keep Alias so that the rest of the statement stays valid.
type FromClauseRewriter interface {
	RewriteFrom(from FromClause) (FromClause, error)
}

// SelectListRewriter optionally adjusts the outer select list after the FROM
// clause was rewritten.
type SelectListRewriter interface {
	RewriteSelect(from FromClause, items []SelectItem) ([]SelectItem, error)
}

// Rebinder is implemented by rewriters whose bound values can be replaced
// after the builder was constructed.
type Rebinder interface {
	Rebind(values ...any) (FromClauseRewriter, error)
}
