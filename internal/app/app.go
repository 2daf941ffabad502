package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/graph"
	"github.com/vk/workgraph/internal/inmemorystore"
	"github.com/vk/workgraph/internal/sqlitestore"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/tracing"
)

// App encapsulates the engine's dependencies and their lifecycle.
type App struct {
	logger   *slog.Logger
	config   *Config
	registry *catalog.Registry
	store    store.Store
	tracing  *tracing.Provider
	graph    *graph.Manager
}

// NewApp loads and validates the catalog, opens the store and builds the
// graph manager. Everything opened so far is released when a step fails.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	reg := catalog.NewRegistry()
	if err := reg.LoadRecursively(ctx, cfg.CatalogPath); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := reg.Validate(ctx, convert.CtyConverter{}); err != nil {
		return nil, err
	}
	logger.Debug("Catalog validation passed.", "components", len(reg.Components()))

	st, err := openStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	manager, err := graph.New(graph.Deps{
		Store:   st,
		Catalog: catalog.NewCached(reg, cfg.CatalogCacheTTL),
		Tracer:  tp.Tracer(),
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = st.Close()
		return nil, err
	}
	logger.Debug("Graph manager ready.", "tracing", tp.Enabled())

	return &App{
		logger:   logger,
		config:   cfg,
		registry: reg,
		store:    st,
		tracing:  tp,
		graph:    manager,
	}, nil
}

func openStore(ctx context.Context, path string) (store.Store, error) {
	logger := ctxlog.FromContext(ctx)
	if path == "" {
		logger.Debug("Using in-memory store.")
		return inmemorystore.New(), nil
	}
	db, err := sqlitestore.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Using SQLite store.", "path", path)
	return db, nil
}

// Context returns ctx carrying the application's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Graph returns the graph manager.
func (a *App) Graph() *graph.Manager { return a.graph }

// Registry returns the loaded component catalog.
func (a *App) Registry() *catalog.Registry { return a.registry }

// Close flushes traces and closes the store.
func (a *App) Close(ctx context.Context) error {
	a.logger.Debug("Shutting down.")
	return errors.Join(a.tracing.Shutdown(ctx), a.store.Close())
}
