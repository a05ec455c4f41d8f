package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/atlekbai/source_registry/internal/config"
	"github.com/atlekbai/source_registry/internal/db"
	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/handler"
	"github.com/atlekbai/source_registry/internal/middleware"
	"github.com/atlekbai/source_registry/internal/runner"
	"github.com/atlekbai/source_registry/internal/schema"
	"github.com/atlekbai/source_registry/internal/server"
	"github.com/atlekbai/source_registry/internal/service"
	"github.com/atlekbai/source_registry/internal/source"
	"github.com/atlekbai/source_registry/internal/watch"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	cache := schema.NewCache()
	var r runner.Runner

	if cfg.Dialect.Name == dialect.Postgres.Name {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := cache.Load(ctx, pool, cfg.CatalogSchema); err != nil {
			return err
		}
		slog.Info("catalog loaded", "schema", cfg.CatalogSchema, "entities", cache.EntityCount())
		r = runner.NewPgxRunner(pool)
	} else {
		sr, err := runner.OpenSQL(cfg.Dialect.Driver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer sr.Close()
		r = sr
	}

	fsys := afero.NewOsFs()
	reg, err := source.LoadRegistry(fsys, cfg.SourcesFile, cache, cfg.Dialect)
	if err != nil {
		return err
	}
	slog.Info("sources loaded",
		"file", cfg.SourcesFile,
		"dialect", cfg.Dialect,
		"entities", len(reg.Entities()),
		"entrypoints", len(reg.All()),
	)

	if cfg.WatchSources {
		w, err := watch.New(cfg.SourcesFile, watch.Sources(reg, fsys, cfg.SourcesFile, cache))
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	mux := http.NewServeMux()
	server.Mount(mux, []server.ConnectService{
		service.NewSourceService(reg, r),
	}, server.LoggingInterceptor())
	handler.New(reg, r).Routes(mux)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: middleware.Chain(mux, middleware.RequestID, middleware.Logging, middleware.Recovery),
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", cfg.Addr())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
