// Package app is monico's composition root: it builds a Storage from
// configuration, wires the Manager, Worker and operator HTTP surface
// together, and exposes the small set of operations every adapter
// (CLI, tests) calls into, the way the teacher's cmd/server wires its
// own store/router/poller trio in one place.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Scorpil/monico/internal/config"
	"github.com/Scorpil/monico/internal/core"
	"github.com/Scorpil/monico/internal/httpapi"
	"github.com/Scorpil/monico/internal/manager"
	"github.com/Scorpil/monico/internal/storage/postgres"
	"github.com/Scorpil/monico/internal/storage/sqlite"
	"github.com/Scorpil/monico/internal/worker"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// App owns the storage handle and the shared dependencies Manager and
// Worker are built from. The Manager and Worker receive it by
// argument, never as package-level globals.
type App struct {
	storage core.Storage
	logger  *slog.Logger
	metrics *httpapi.Metrics

	healthAddr string
	httpServer *http.Server

	connected bool
}

// New builds an App from a resolved Config. It does not connect to
// storage; call Connect before running any operation that touches the
// database, Setup included.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var storage core.Storage
	switch {
	case cfg.PostgresURI != "":
		storage = postgres.New(cfg.PostgresURI, cfg.TablePrefix)
	case cfg.SQLiteURI != "":
		storage = sqlite.New(strings.TrimPrefix(cfg.SQLiteURI, "sqlite://"), cfg.TablePrefix)
	default:
		return nil, core.NewConfigurationError("no storage backend configured")
	}

	return &App{
		storage:    storage,
		logger:     logger,
		metrics:    httpapi.NewMetrics(),
		healthAddr: cfg.HealthAddr,
	}, nil
}

// Connect opens the storage connection and starts the operator HTTP
// surface (/healthz, /readyz, /metrics).
func (a *App) Connect(ctx context.Context) error {
	if err := a.storage.Connect(ctx); err != nil {
		return err
	}
	a.connected = true

	router := httpapi.NewRouter(func() bool { return a.connected }, a.metrics)
	a.httpServer = &http.Server{Addr: a.healthAddr, Handler: router}
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("operator http server stopped", "error", err)
		}
	}()

	return nil
}

// Setup creates (or, with force, recreates) the managed schema.
func (a *App) Setup(ctx context.Context, force bool) error {
	return a.storage.Setup(ctx, force)
}

// CreateMonitor validates and persists a new monitor.
func (a *App) CreateMonitor(ctx context.Context, id, name, endpoint string, interval int, bodyRegexp *string) (*core.Monitor, error) {
	m, err := core.NewMonitor(id, name, endpoint, interval, bodyRegexp)
	if err != nil {
		return nil, err
	}
	return a.storage.CreateMonitor(ctx, m)
}

// ListMonitors returns every monitor, oldest-created first.
func (a *App) ListMonitors(ctx context.Context) ([]*core.Monitor, error) {
	return a.storage.ListMonitors(ctx, core.CreatedAtAsc)
}

// DeleteMonitor removes a monitor and its tasks/probes, returning the
// deleted row.
func (a *App) DeleteMonitor(ctx context.Context, id string) (*core.Monitor, error) {
	return a.storage.DeleteMonitor(ctx, id)
}

// Status reads a monitor and its most recent probes, newest first.
func (a *App) Status(ctx context.Context, monitorID string, limit int) (*core.Monitor, []*core.Probe, error) {
	m, err := a.storage.ReadMonitor(ctx, monitorID)
	if err != nil {
		return nil, nil, err
	}
	probes, err := a.storage.ListProbes(ctx, monitorID, limit)
	if err != nil {
		return nil, nil, err
	}
	return m, probes, nil
}

// RunManager runs the scheduling loop until ctx is cancelled.
func (a *App) RunManager(ctx context.Context) error {
	m := manager.New(a.storage, a.logger, a.metrics)
	return m.Run(ctx)
}

// RunWorker runs the lease loop until ctx is cancelled. workerID may
// be empty, in which case a UUID is generated.
func (a *App) RunWorker(ctx context.Context, workerID string) error {
	w := worker.New(workerID, a.storage, a.logger, a.metrics)
	return w.Run(ctx)
}

// Run runs Manager and Worker concurrently in this process, sharing
// one cancellation context. An error from either is logged; the other
// keeps running until its own cancellation, matching the original
// combined `run` command.
func (a *App) Run(ctx context.Context, workerID string) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.RunManager(groupCtx); err != nil {
			a.logger.Error("manager loop exited with error", "error", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := a.RunWorker(groupCtx, workerID); err != nil {
			a.logger.Error("worker loop exited with error", "error", err)
		}
		return nil
	})

	return group.Wait()
}

// Shutdown disconnects storage and stops the operator HTTP server,
// aggregating any close errors rather than stopping at the first one.
func (a *App) Shutdown(ctx context.Context) error {
	var err error

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("shutting down operator http server: %w", shutdownErr))
		}
	}

	a.connected = false
	if disconnectErr := a.storage.Disconnect(ctx); disconnectErr != nil {
		err = multierr.Append(err, fmt.Errorf("disconnecting storage: %w", disconnectErr))
	}

	return err
}
