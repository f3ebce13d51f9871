// Package worker implements the lease-and-probe half of monico's
// two-role scheduler: it atomically leases batches of pending tasks,
// executes the HTTP probe for each, and records the outcome. Stale
// tasks (aged past their creation) are abandoned rather than retried.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Scorpil/monico/internal/core"
	"github.com/Scorpil/monico/internal/httpapi"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// BatchSize is the number of tasks leased per LockTasks call.
	BatchSize = 10
	// MinWait is the minimum duration between the start of consecutive
	// lease attempts, matching Manager's throttle.
	MinWait = 5 * time.Second
	// StaleThreshold is the maximum age (from creation) a task may
	// reach before a worker abandons it instead of probing it.
	StaleThreshold = 600 * time.Second
	// RequestTimeout bounds the HTTP probe itself.
	RequestTimeout = 5 * time.Second
	// maxBodyBytes caps how much of a response body is read for regex
	// matching, so a misbehaving endpoint can't exhaust memory.
	maxBodyBytes = 1 << 20
)

// Worker runs the lease loop against a Storage.
type Worker struct {
	id      string
	storage core.Storage
	client  *http.Client
	logger  *slog.Logger
	metrics *httpapi.Metrics
}

// New builds a Worker with the given stable id (generated if empty).
// metrics may be nil in tests.
func New(id string, storage core.Storage, logger *slog.Logger, metrics *httpapi.Metrics) *Worker {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:      id,
		storage: storage,
		client:  &http.Client{},
		logger:  logger.With("component", "worker", "worker_id", id),
		metrics: metrics,
	}
}

// ID returns the worker's stable identifier.
func (w *Worker) ID() string { return w.id }

// Run loops until ctx is cancelled, leasing and executing batches.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting worker")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return nil
		default:
		}

		if err := w.runBatch(ctx); err != nil {
			w.logger.Error("batch failed", "error", err)
		}
	}
}

// runBatch leases one batch and executes every task concurrently with
// a MinWait sleep, so the loop never attempts leases faster than
// MinWait even when the batch finishes instantly.
func (w *Worker) runBatch(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.WorkerBatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	tasks, err := w.storage.LockTasks(ctx, w.id, BatchSize)
	if err != nil {
		w.logger.Error("failed to lease tasks", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(MinWait):
		}
		return nil
	}

	if w.metrics != nil {
		for range tasks {
			w.metrics.TasksLeased.Inc()
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
		case <-time.After(MinWait):
		}
		return nil
	})

	for _, t := range tasks {
		task := t
		group.Go(func() error {
			w.processTask(ctx, task)
			return nil
		})
	}

	return group.Wait()
}

// processTask runs the stale check, issues the probe if the task is
// still fresh, and records the outcome. Storage errors are logged and
// swallowed so one task's failure never interrupts its batch siblings.
func (w *Worker) processTask(ctx context.Context, task *core.Task) {
	now := time.Now().Unix()
	if task.IsStale(now, int64(StaleThreshold.Seconds())) {
		task.Abandon()
		if err := w.storage.UpdateTask(ctx, task); err != nil {
			w.logger.Error("failed to mark task abandoned", "task_id", task.ID, "error", err)
			return
		}
		if w.metrics != nil {
			w.metrics.TasksAbandoned.Inc()
		}
		w.logger.Warn("task abandoned as stale", "task_id", task.ID, "monitor_id", task.MonitorID)
		return
	}

	monitor, err := w.storage.ReadMonitor(ctx, task.MonitorID)
	if err != nil {
		w.logger.Error("failed to read monitor for task", "task_id", task.ID, "monitor_id", task.MonitorID, "error", err)
		return
	}

	probe := w.probe(ctx, monitor, task)

	if err := w.storage.RecordProbe(ctx, probe); err != nil {
		w.logger.Error("failed to record probe", "task_id", task.ID, "error", err)
		return
	}

	outcome := "success"
	if probe.ResponseError != nil {
		outcome = strings.ToLower(string(*probe.ResponseError))
	}
	if w.metrics != nil {
		w.metrics.ProbesRecorded.WithLabelValues(outcome).Inc()
	}
	w.logger.Debug("probe recorded", "task_id", task.ID, "monitor_id", monitor.ID, "outcome", outcome)
}

// probe issues the HTTP GET against monitor.Endpoint and builds the
// resulting Probe record, classifying the failure mode when the
// request does not complete successfully.
func (w *Worker) probe(ctx context.Context, monitor *core.Monitor, task *core.Task) *core.Probe {
	reqCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, monitor.Endpoint, nil)
	if err != nil {
		elapsed := time.Since(start).Seconds()
		connErr := core.ProbeErrorConnectionError
		return core.NewProbe(monitor.ID, task.ID, elapsed, nil, &connErr, nil)
	}

	resp, err := w.client.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return core.NewProbe(monitor.ID, task.ID, elapsed, nil, classifyError(err), nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		connErr := core.ProbeErrorConnectionError
		return core.NewProbe(monitor.ID, task.ID, time.Since(start).Seconds(), nil, &connErr, nil)
	}

	code := resp.StatusCode
	var contentMatch *string
	if monitor.BodyRegexp != nil {
		if re, err := regexp.Compile(*monitor.BodyRegexp); err == nil {
			if match := re.FindString(string(body)); match != "" {
				contentMatch = &match
			}
		}
	}

	return core.NewProbe(monitor.ID, task.ID, elapsed, &code, nil, contentMatch)
}

// classifyError maps a failed HTTP round trip to the closed taxonomy
// of transport errors (TIMEOUT vs. CONNECTION_ERROR).
func classifyError(err error) *core.ProbeResponseError {
	timeout := core.ProbeErrorTimeout
	connErr := core.ProbeErrorConnectionError

	if errors.Is(err, context.DeadlineExceeded) {
		return &timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &timeout
	}
	return &connErr
}
