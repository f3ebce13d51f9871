// Package manager implements the scheduling half of monico's two-role
// scheduler: a single cooperative loop that decides which monitors are
// due for a new probe and enqueues tasks for them. It never talks to a
// Worker directly — the storage backend is the only rendezvous.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/Scorpil/monico/internal/core"
	"github.com/Scorpil/monico/internal/httpapi"
)

// MinWait is the minimum duration between the start of consecutive
// ticks, regardless of how long a scheduling pass takes.
const MinWait = 5 * time.Second

// Manager runs the scheduling loop against a Storage.
type Manager struct {
	storage core.Storage
	logger  *slog.Logger
	metrics *httpapi.Metrics
}

// New builds a Manager. metrics may be nil in tests.
func New(storage core.Storage, logger *slog.Logger, metrics *httpapi.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		storage: storage,
		logger:  logger.With("component", "manager"),
		metrics: metrics,
	}
}

// Run loops until ctx is cancelled, starting a new tick no sooner than
// MinWait after the previous one started.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("starting manager")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("manager stopping")
			return nil
		default:
		}

		start := time.Now()
		if err := m.tick(ctx); err != nil {
			m.logger.Error("scheduling tick failed", "error", err)
		}
		elapsed := time.Since(start)
		if m.metrics != nil {
			m.metrics.ManagerTickDuration.Observe(elapsed.Seconds())
		}

		wait := MinWait - elapsed
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			m.logger.Info("manager stopping")
			return nil
		case <-time.After(wait):
		}
	}
}

// tick lists monitors by LAST_TASK_AT_DESC and enqueues a task for
// every monitor whose interval has elapsed.
func (m *Manager) tick(ctx context.Context) error {
	now := time.Now().Unix()

	monitors, err := m.storage.ListMonitors(ctx, core.LastTaskAtDesc)
	if err != nil {
		return err
	}

	for _, mon := range monitors {
		due := mon.LastTaskAt == nil || now-*mon.LastTaskAt >= int64(mon.Interval)
		if !due {
			m.logger.Debug("monitor not due", "monitor_id", mon.ID)
			continue
		}

		task := core.NewTask(mon.ID)
		if _, err := m.storage.CreateTask(ctx, task); err != nil {
			m.logger.Error("failed to create task", "monitor_id", mon.ID, "error", err)
			continue
		}
		if m.metrics != nil {
			m.metrics.TasksCreated.Inc()
		}
		m.logger.Debug("task created", "monitor_id", mon.ID, "task_id", task.ID)
	}

	return nil
}
