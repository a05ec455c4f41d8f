package server

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs every unary call with its procedure, duration and
// the connect code of a failed call.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"procedure", req.Spec().Procedure,
				"duration", time.Since(start),
			}
			if err != nil {
				slog.Warn("rpc failed", append(attrs, "code", connect.CodeOf(err).String(), "error", err)...)
				return resp, err
			}
			slog.Info("rpc", attrs...)
			return resp, nil
		}
	}
}
