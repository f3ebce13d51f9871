package core

import "context"

// MonitorSortingOrder selects the ORDER BY clause ListMonitors applies.
type MonitorSortingOrder int

const (
	CreatedAtAsc MonitorSortingOrder = iota
	LastTaskAtDesc
)

// Storage is the backend-neutral contract both the relational and
// embedded implementations satisfy. Every mutation is one database
// transaction, except Setup with force=true, which runs Teardown before
// (not inside) the schema-creation transaction: a forced Setup that
// fails after Teardown leaves the managed objects dropped.
type Storage interface {
	// Connect acquires the underlying connection/pool and probes the
	// backend with a trivial query, returning StorageConnectionError
	// on failure.
	Connect(ctx context.Context) error

	// Disconnect releases the underlying connection/pool. Safe to call
	// more than once.
	Disconnect(ctx context.Context) error

	// Setup creates all managed tables, indexes and enumerated types.
	// With force=true, managed objects are dropped first. Re-running
	// without force on an initialized store returns StorageSetupError.
	Setup(ctx context.Context, force bool) error

	// Teardown drops all managed objects. Idempotent.
	Teardown(ctx context.Context) error

	// CreateMonitor assigns an ID if m.ID is empty and inserts the
	// monitor, returning MonitorAlreadyExistsError on collision.
	CreateMonitor(ctx context.Context, m *Monitor) (*Monitor, error)

	// ListMonitors returns every monitor in the requested order.
	ListMonitors(ctx context.Context, sort MonitorSortingOrder) ([]*Monitor, error)

	// ReadMonitor returns MonitorNotFoundError if id is unknown.
	ReadMonitor(ctx context.Context, id string) (*Monitor, error)

	// DeleteMonitor removes the monitor (cascading to its tasks and
	// probes) and returns the deleted row.
	DeleteMonitor(ctx context.Context, id string) (*Monitor, error)

	// CreateTask inserts the task in PENDING and updates the parent
	// monitor's LastTaskAt in one transaction.
	CreateTask(ctx context.Context, t *Task) (*Task, error)

	// LockTasks atomically leases up to batchSize PENDING tasks
	// (FIFO by Timestamp) to workerID, returning the claimed rows.
	// Concurrent callers never receive overlapping task sets.
	LockTasks(ctx context.Context, workerID string, batchSize int) ([]*Task, error)

	// UpdateTask persists Status and CompletedAt.
	UpdateTask(ctx context.Context, t *Task) error

	// RecordProbe atomically inserts the probe, updates the parent
	// monitor's LastProbeAt, and marks the parent task COMPLETED.
	RecordProbe(ctx context.Context, p *Probe) error

	// ListProbes returns up to limit probes for monitorID, newest first.
	ListProbes(ctx context.Context, monitorID string, limit int) ([]*Probe, error)
}

// TableNames holds the prefixed table names a backend uses, so a
// single database can host more than one deployment's schema.
type TableNames struct {
	Monitors string
	Tasks    string
	Probes   string
}

// DefaultTablePrefix is used when no prefix is configured. "monic" is
// the legacy prefix kept only for documentation purposes (see
// SPEC_FULL.md §4) — a deployment picks one prefix and stays on it.
const DefaultTablePrefix = "monico"

// NewTableNames builds the prefixed table names for prefix.
func NewTableNames(prefix string) TableNames {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	return TableNames{
		Monitors: prefix + "_monitors",
		Tasks:    prefix + "_tasks",
		Probes:   prefix + "_probes",
	}
}
