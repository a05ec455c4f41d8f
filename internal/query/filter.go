package query

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/source_registry/internal/schema"
)

type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpLike  FilterOp = "like"
	OpIlike FilterOp = "ilike"
	OpIn    FilterOp = "in"
	OpIs    FilterOp = "is"
)

var validOps = map[FilterOp]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpLike: true, OpIlike: true,
	OpIn: true, OpIs: true,
}

type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// ParseFilter parses a filter value like "eq.hello" into op + value.
func ParseFilter(raw string) (FilterOp, string, error) {
	before, after, ok := strings.Cut(raw, ".")
	if !ok {
		return "", "", fmt.Errorf("invalid filter format %q, expected op.value", raw)
	}

	op := FilterOp(before)
	if !validOps[op] {
		return "", "", fmt.Errorf("unknown filter operator %q", op)
	}

	value := after
	if op == OpIs && value != "null" && value != "not_null" {
		return "", "", fmt.Errorf("is operator only accepts null or not_null, got %q", value)
	}

	return op, value, nil
}

// ColumnFilter parses raw against a column of ent. Comparison values are
// converted to the column's type so that they bind as numbers or booleans
// where the column holds them; like, ilike and is keep their text.
func ColumnFilter(ent *schema.EntityDef, column, raw string) (Filter, error) {
	col, ok := ent.ColumnsByName[column]
	if !ok {
		return Filter{}, fmt.Errorf("unknown filter column %q", column)
	}
	op, value, err := ParseFilter(raw)
	if err != nil {
		return Filter{}, fmt.Errorf("filter %q: %w", column, err)
	}
	f := Filter{Column: column, Op: op, Value: value}

	switch op {
	case OpLike, OpIlike, OpIs:
		return f, nil
	case OpIn:
		parts := InValues(value)
		values := make([]any, len(parts))
		for i, part := range parts {
			if values[i], err = typedValue(col.Type, part); err != nil {
				return Filter{}, fmt.Errorf("filter %q: %w", column, err)
			}
		}
		f.Value = values
		return f, nil
	}
	if f.Value, err = typedValue(col.Type, value); err != nil {
		return Filter{}, fmt.Errorf("filter %q: %w", column, err)
	}
	return f, nil
}

func typedValue(t schema.ColumnType, s string) (any, error) {
	switch t {
	case schema.ColumnInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return n, nil
	case schema.ColumnNumeric:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case schema.ColumnBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	default:
		return s, nil
	}
}

// InValues splits a comma-separated "in" filter value into individual values.
func InValues(value string) []string {
	return strings.Split(value, ",")
}

// SQLOp returns the SQL operator string for a FilterOp.
func SQLOp(op FilterOp) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpLike:
		return "LIKE"
	default:
		return "="
	}
}

// filterCondition returns a Squirrel condition for a single filter.
func filterCondition(col string, f Filter) sq.Sqlizer {
	switch f.Op {
	case OpIn:
		switch v := f.Value.(type) {
		case string:
			return sq.Eq{col: InValues(v)}
		default:
			return sq.Eq{col: v}
		}
	case OpIs:
		if f.Value == "null" || f.Value == nil {
			return sq.Eq{col: nil}
		}
		return sq.NotEq{col: nil}
	case OpIlike:
		return sq.Expr(fmt.Sprintf(`LOWER(%s) LIKE LOWER(?)`, col), f.Value)
	}

	return sq.Expr(fmt.Sprintf(`%s %s ?`, col, SQLOp(f.Op)), f.Value)
}
