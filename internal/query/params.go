package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/atlekbai/source_registry/internal/schema"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var reservedParams = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
	"arg":    true,
}

type OrderClause struct {
	Column string
	Desc   bool
}

// QueryParams is the caller-facing refinement of a source query: projection,
// filters, ordering and paging.
type QueryParams struct {
	Select  []string
	Filters []Filter
	Order   *OrderClause
	Limit   int
	Offset  int
}

// ParamsInput carries unparsed refinements from a transport.
type ParamsInput struct {
	Select  []string
	Order   string
	Limit   int
	Offset  int
	Filters map[string]string
}

// ParseParams validates the input against the entity's declared columns.
func ParseParams(ent *schema.EntityDef, in ParamsInput) (*QueryParams, error) {
	p := &QueryParams{
		Limit:  DefaultLimit,
		Offset: in.Offset,
	}

	for _, c := range in.Select {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !ent.HasColumn(c) {
			return nil, fmt.Errorf("unknown column %q in select", c)
		}
		p.Select = append(p.Select, c)
	}

	// order=column.desc
	if in.Order != "" {
		column, dir, _ := strings.Cut(in.Order, ".")
		if !ent.HasColumn(column) {
			return nil, fmt.Errorf("unknown column %q in order", column)
		}
		p.Order = &OrderClause{Column: column, Desc: strings.EqualFold(dir, "desc")}
	}

	if in.Limit < 0 || in.Offset < 0 {
		return nil, fmt.Errorf("limit and offset must not be negative")
	}
	if in.Limit > 0 {
		p.Limit = min(in.Limit, MaxLimit)
	}

	// Sorted so that the generated SQL is deterministic.
	columns := make([]string, 0, len(in.Filters))
	for c := range in.Filters {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for _, c := range columns {
		f, err := ColumnFilter(ent, c, in.Filters[c])
		if err != nil {
			return nil, err
		}
		p.Filters = append(p.Filters, f)
	}

	return p, nil
}

// ParseValues reads refinements from URL query values. Every non-reserved
// key is a column filter: ?number=gte.10
func ParseValues(ent *schema.EntityDef, q url.Values) (*QueryParams, error) {
	in := ParamsInput{
		Order:   q.Get("order"),
		Filters: make(map[string]string),
	}
	if sel := q.Get("select"); sel != "" {
		in.Select = strings.Split(sel, ",")
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid limit %q", lim)
		}
		in.Limit = n
	}
	if off := q.Get("offset"); off != "" {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid offset %q", off)
		}
		in.Offset = n
	}
	for key, values := range q {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		in.Filters[key] = values[0]
	}
	return ParseParams(ent, in)
}

// Apply refines b with the parsed parameters.
func (p *QueryParams) Apply(b Builder) Builder {
	if len(p.Select) > 0 {
		b = b.Select(p.Select...)
	}
	for _, f := range p.Filters {
		b = b.Filter(f)
	}
	if p.Order != nil {
		b = b.OrderBy(p.Order.Column, p.Order.Desc)
	}
	if p.Limit > 0 {
		b = b.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		b = b.Offset(uint64(p.Offset))
	}
	return b
}
