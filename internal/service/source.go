package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/runner"
	"github.com/atlekbai/source_registry/internal/source"
)

const (
	SourceServiceName = "source.v1.SourceService"

	QueryProcedure       = "/" + SourceServiceName + "/Query"
	ExplainProcedure     = "/" + SourceServiceName + "/Explain"
	EntrypointsProcedure = "/" + SourceServiceName + "/Entrypoints"
)

// exactCountThreshold is the planner estimate below which we run an exact count.
const exactCountThreshold = 50_000

// SourceService reads entities through registered entrypoints.
type SourceService struct {
	reg    *source.Registry
	runner runner.Runner
}

func NewSourceService(reg *source.Registry, r runner.Runner) *SourceService {
	return &SourceService{reg: reg, runner: r}
}

func (s *SourceService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := connect.WithInterceptors(interceptors...)
	mux := http.NewServeMux()
	mux.Handle(QueryProcedure, connect.NewUnaryHandler(QueryProcedure, s.Query, opts))
	mux.Handle(ExplainProcedure, connect.NewUnaryHandler(ExplainProcedure, s.Explain, opts))
	mux.Handle(EntrypointsProcedure, connect.NewUnaryHandler(EntrypointsProcedure, s.Entrypoints, opts))
	return "/" + SourceServiceName + "/", mux
}

// Query runs an entrypoint with the requested refinements and returns the
// page of rows together with the total row count.
func (s *SourceService) Query(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	qr, err := decodeQueryRequest(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	base, params, err := s.prepare(qr)
	if err != nil {
		return nil, err
	}

	// The count ignores paging and ordering.
	countParams := *params
	countParams.Order, countParams.Limit, countParams.Offset = nil, 0, 0
	counter := countParams.Apply(base)
	lister := params.Apply(base)

	g, gctx := errgroup.WithContext(ctx)

	var totalCount int64
	g.Go(func() error {
		var err error
		totalCount, err = s.resolveCount(gctx, counter)
		return err
	})

	var rows []runner.Row
	g.Go(func() error {
		sqlStr, args, err := lister.ToSql()
		if err != nil {
			return err
		}
		rows, err = s.runner.Rows(gctx, sqlStr, args)
		return err
	})

	if err := g.Wait(); err != nil {
		if isSourceError(err) {
			return nil, sourceError(err)
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("query failed: %w", err))
	}

	results := make([]any, len(rows))
	for i, r := range rows {
		results[i] = map[string]any(r)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"rows":        results,
		"total_count": totalCount,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	return connect.NewResponse(resp), nil
}

// Explain returns the statement Query would run, without running it.
func (s *SourceService) Explain(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	qr, err := decodeQueryRequest(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	base, params, err := s.prepare(qr)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := params.Apply(base).ToSql()
	if err != nil {
		return nil, sourceError(err)
	}

	encoded := make([]any, len(args))
	for i, a := range args {
		encoded[i] = runner.Normalize(a)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"sql":    sqlStr,
		"params": encoded,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	return connect.NewResponse(resp), nil
}

// Entrypoints lists the registered entrypoints, optionally of one entity.
func (s *SourceService) Entrypoints(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	entity := req.Msg.GetFields()["entity"].GetStringValue()

	var eps []*source.Entrypoint
	if entity != "" {
		if _, ok := s.reg.Entity(entity); !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no entity registered with name %q", entity))
		}
		eps = s.reg.Entrypoints(entity)
	} else {
		eps = s.reg.All()
	}

	list := make([]any, len(eps))
	for i, e := range eps {
		list[i] = map[string]any{
			"entity":             e.Entity.Name,
			"name":               e.Name,
			"call_parameterized": e.IsCallParameterized(),
		}
	}
	resp, err := structpb.NewStruct(map[string]any{"entrypoints": list})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	return connect.NewResponse(resp), nil
}

func (s *SourceService) prepare(qr *queryRequest) (query.Builder, *query.QueryParams, error) {
	base, err := s.reg.Query(qr.Entity, qr.Source, qr.Call)
	if err != nil {
		return query.Builder{}, nil, sourceError(err)
	}
	params, err := query.ParseParams(base.Entity(), qr.Params)
	if err != nil {
		return query.Builder{}, nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return base, params, nil
}

// resolveCount uses the EXPLAIN trick for cheap estimation on large sources,
// falling back to exact count only when the planner estimate is small.
func (s *SourceService) resolveCount(ctx context.Context, b query.Builder) (int64, error) {
	countSQL, countArgs, err := b.CountSql()
	if err != nil {
		return 0, err
	}

	est, ok := s.runner.(runner.Estimator)
	if !ok {
		return s.runner.Count(ctx, countSQL, countArgs)
	}

	listSQL, listArgs, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	estimated, err := est.Estimate(ctx, listSQL, listArgs)
	if err != nil {
		return 0, err
	}
	if estimated > exactCountThreshold {
		return estimated, nil
	}
	count, err := s.runner.Count(ctx, countSQL, countArgs)
	if err != nil {
		return estimated, nil
	}
	return count, nil
}

func isSourceError(err error) bool {
	for _, target := range []error{
		source.ErrNotFound,
		source.ErrUsage,
		source.ErrConfiguration,
		source.ErrColumnMismatch,
		source.ErrAmbiguousTranslation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// sourceError maps source errors onto connect codes. Caller mistakes are
// InvalidArgument; a source that does not fit its entity is a server-side
// FailedPrecondition.
func sourceError(err error) error {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, source.ErrUsage):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, source.ErrConfiguration),
		errors.Is(err, source.ErrColumnMismatch),
		errors.Is(err, source.ErrAmbiguousTranslation):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
}
