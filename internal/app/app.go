package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/pdgsim/internal/badgerstore"
	"github.com/specialistvlad/pdgsim/internal/config"
	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/graphstore"
	"github.com/specialistvlad/pdgsim/internal/inmemorystore"
	"github.com/specialistvlad/pdgsim/internal/telemetry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	loader     config.Loader
	store      graphstore.Store
	metrics    *telemetry.Metrics
	httpServer *http.Server
	shutdown   func(context.Context) error

	closeOnce sync.Once
	closeErr  error
}

// NewApp wires the logger, the graph store, metrics and tracing. The
// returned App must be closed.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		ctx:     ctx,
		outW:    outW,
		logger:  logger,
		config:  cfg,
		loader:  loader,
		metrics: telemetry.NewMetrics(),
	}

	if cfg.CacheDir == "" {
		a.store = inmemorystore.New()
		logger.Debug("Using in-memory graph store.")
	} else {
		s, err := badgerstore.Open(badgerstore.Config{Path: cfg.CacheDir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to open graph store: %w", err)
		}
		a.store = s
		logger.Debug("Using persistent graph store.", "path", cfg.CacheDir)
	}

	shutdown, err := telemetry.InitTracing(cfg.TraceExporter, outW)
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	a.shutdown = shutdown

	a.healthCheckServer()
	return a, nil
}

// Metrics returns the application's metrics. This is primarily for testing.
func (a *App) Metrics() *telemetry.Metrics {
	return a.metrics
}

// Close stops the health check server, flushes traces and closes the graph
// store. Only the first call does any work.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = errors.Join(
			a.closeHealthCheckServer(),
			a.shutdown(a.ctx),
			a.store.Close(),
		)
	})
	return a.closeErr
}
