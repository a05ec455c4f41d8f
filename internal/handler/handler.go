package handler

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/runner"
	"github.com/atlekbai/source_registry/internal/source"
)

type Handler struct {
	reg    *source.Registry
	runner runner.Runner
}

func New(reg *source.Registry, r runner.Runner) *Handler {
	return &Handler{reg: reg, runner: r}
}

// Routes registers the plain HTTP endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/{entity}/{source}", h.List)
	mux.HandleFunc("GET /api/{entity}/{source}/count", h.Count)
	mux.HandleFunc("GET /explain/{entity}/{source}", h.Explain)
	mux.HandleFunc("GET /sources", h.Sources)
}

type listResponse struct {
	TotalCount int64        `json:"total_count"`
	Results    []runner.Row `json:"results"`
}

type explainResponse struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type entrypointResponse struct {
	Entity            string `json:"entity"`
	Name              string `json:"name"`
	CallParameterized bool   `json:"call_parameterized"`
}

// List handles GET /api/{entity}/{source}?arg=..&col=op.value
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	base, params, ok := h.prepare(w, r)
	if !ok {
		return
	}

	countParams := *params
	countParams.Order, countParams.Limit, countParams.Offset = nil, 0, 0
	counter := countParams.Apply(base)
	lister := params.Apply(base)

	g, ctx := errgroup.WithContext(r.Context())

	var totalCount int64
	g.Go(func() error {
		var err error
		totalCount, err = h.count(ctx, counter)
		return err
	})

	var results []runner.Row
	g.Go(func() error {
		sqlStr, args, err := lister.ToSql()
		if err != nil {
			return err
		}
		results, err = h.runner.Rows(ctx, sqlStr, args)
		return err
	})

	if err := g.Wait(); err != nil {
		writeSourceError(w, err)
		return
	}
	if results == nil {
		results = []runner.Row{}
	}
	writeJSON(w, http.StatusOK, listResponse{TotalCount: totalCount, Results: results})
}

// Count handles GET /api/{entity}/{source}/count and always returns an exact count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	base, params, ok := h.prepare(w, r)
	if !ok {
		return
	}
	params.Order, params.Limit, params.Offset = nil, 0, 0

	count, err := h.count(r.Context(), params.Apply(base))
	if err != nil {
		writeSourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// Explain handles GET /explain/{entity}/{source}: the rewritten statement
// and its ordered params, without running it.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	base, params, ok := h.prepare(w, r)
	if !ok {
		return
	}
	sqlStr, args, err := params.Apply(base).ToSql()
	if err != nil {
		writeSourceError(w, err)
		return
	}
	if args == nil {
		args = []any{}
	}
	writeJSON(w, http.StatusOK, explainResponse{SQL: sqlStr, Params: args})
}

// Sources handles GET /sources
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	out := []entrypointResponse{}
	for _, e := range h.reg.All() {
		out = append(out, entrypointResponse{
			Entity:            e.Entity.Name,
			Name:              e.Name,
			CallParameterized: e.IsCallParameterized(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (query.Builder, *query.QueryParams, bool) {
	values := r.URL.Query()
	call := source.Call{}
	for _, a := range values["arg"] {
		call.Args = append(call.Args, a)
	}

	base, err := h.reg.Query(r.PathValue("entity"), r.PathValue("source"), call)
	if err != nil {
		writeSourceError(w, err)
		return query.Builder{}, nil, false
	}

	params, err := query.ParseValues(base.Entity(), values)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), "")
		return query.Builder{}, nil, false
	}
	return base, params, true
}

func (h *Handler) count(ctx context.Context, b query.Builder) (int64, error) {
	sqlStr, args, err := b.CountSql()
	if err != nil {
		return 0, err
	}
	return h.runner.Count(ctx, sqlStr, args)
}
