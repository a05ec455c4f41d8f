// Package dialect describes the SQL backends statements are rendered for:
// how identifiers are quoted, which placeholder style bound values use, and
// which database/sql driver executes them.
package dialect

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type Dialect struct {
	Name   string
	Driver string

	// Placeholder rewrites the canonical "?" placeholders of a finished statement.
	Placeholder sq.PlaceholderFormat

	quote byte
}

var (
	Postgres = Dialect{Name: "postgres", Driver: "postgres", Placeholder: sq.Dollar, quote: '"'}
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", Placeholder: sq.Question, quote: '"'}
	MySQL    = Dialect{Name: "mysql", Driver: "mysql", Placeholder: sq.Question, quote: '`'}
)

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown dialect %q", name)
	}
}

// QuoteIdent quotes a single identifier, doubling embedded quote characters.
func (d Dialect) QuoteIdent(name string) string {
	q := string(d.quote)
	if q == "\x00" {
		q = `"`
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// QuoteRef quotes a possibly dotted reference such as schema.table part by part.
func (d Dialect) QuoteRef(ref string) string {
	parts := strings.Split(ref, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) String() string { return d.Name }
