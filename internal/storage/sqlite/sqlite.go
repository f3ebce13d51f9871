// Package sqlite implements core.Storage over an embedded, single-file
// SQLite database using the pure-Go modernc.org/sqlite driver (no cgo,
// matching the portable-binary expectations of the teacher's other
// embedded-storage examples in the retrieval pack). The engine
// serializes writers itself, so the same compound
// "UPDATE ... RETURNING" lease statement used by the postgres backend
// is sufficient here too (spec.md §4.2).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Scorpil/monico/internal/core"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Storage is a core.Storage backed by a single SQLite file.
type Storage struct {
	path   string
	tables core.TableNames
	db     *sql.DB
}

// New builds a sqlite-backed Storage for the file at path (a plain
// filesystem path, not a "sqlite://" URI — callers strip the scheme).
func New(path string, prefix string) *Storage {
	return &Storage{
		path:   path,
		tables: core.NewTableNames(prefix),
	}
}

// Connect opens the database file, creating its parent directory if
// necessary, and probes it with a trivial query.
func (s *Storage) Connect(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &core.StorageConnectionError{Err: err}
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return &core.StorageConnectionError{Err: err}
	}

	// SQLite serializes writers at the engine level; a single
	// connection avoids "database is locked" errors under concurrent
	// Manager/Worker access from the same process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &core.StorageConnectionError{Err: err}
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return &core.StorageConnectionError{Err: err}
	}

	s.db = db
	return nil
}

func (s *Storage) Disconnect(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) alreadyInitialized(ctx context.Context) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, s.tables.Monitors,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Setup(ctx context.Context, force bool) error {
	if force {
		if err := s.Teardown(ctx); err != nil {
			return &core.StorageSetupError{Message: "failed to tear down existing schema", Err: err}
		}
	} else {
		exists, err := s.alreadyInitialized(ctx)
		if err != nil {
			return &core.StorageSetupError{Message: "failed to inspect existing schema", Err: err}
		}
		if exists {
			return &core.StorageSetupError{Message: "storage already initialized"}
		}
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			interval INTEGER NOT NULL,
			body_regexp TEXT NULL,
			last_task_at INTEGER NULL,
			last_probe_at INTEGER NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		)`, s.tables.Monitors),
		fmt.Sprintf(`CREATE INDEX %[1]s_last_probe_at_idx ON %[1]s (last_probe_at)`, s.tables.Monitors),
		fmt.Sprintf(`CREATE INDEX %[1]s_created_at_idx ON %[1]s (created_at)`, s.tables.Monitors),

		fmt.Sprintf(`CREATE TABLE %[1]s (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			fk_monitor TEXT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'COMPLETED', 'ABANDONED', 'FAILED')),
			locked_at INTEGER NULL,
			locked_by TEXT NULL,
			completed_at INTEGER NULL
		)`, s.tables.Tasks, s.tables.Monitors),
		fmt.Sprintf(`CREATE INDEX %[1]s_fk_monitor_idx ON %[1]s (fk_monitor)`, s.tables.Tasks),
		fmt.Sprintf(`CREATE INDEX %[1]s_status_timestamp_idx ON %[1]s (status, timestamp)`, s.tables.Tasks),

		fmt.Sprintf(`CREATE TABLE %[1]s (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			fk_monitor TEXT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
			fk_task TEXT NULL REFERENCES %[3]s(id) ON DELETE SET NULL,
			response_time REAL NOT NULL,
			response_code INTEGER NULL,
			response_error TEXT NULL CHECK (response_error IN ('TIMEOUT', 'CONNECTION_ERROR')),
			content_match TEXT NULL
		)`, s.tables.Probes, s.tables.Monitors, s.tables.Tasks),
		fmt.Sprintf(`CREATE INDEX %[1]s_timestamp_idx ON %[1]s (timestamp)`, s.tables.Probes),
		fmt.Sprintf(`CREATE INDEX %[1]s_fk_monitor_idx ON %[1]s (fk_monitor)`, s.tables.Probes),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageSetupError{Message: "failed to begin setup transaction", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &core.StorageSetupError{Message: "failed to create schema", Err: err}
		}
	}

	return tx.Commit()
}

func (s *Storage) Teardown(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tables.Probes),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tables.Tasks),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tables.Monitors),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) CreateMonitor(ctx context.Context, m *core.Monitor) (*core.Monitor, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, name, endpoint, interval, body_regexp) VALUES (?, ?, ?, ?, ?)", s.tables.Monitors),
		id, m.Name, m.Endpoint, m.Interval, m.BodyRegexp,
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY {
			return nil, &core.MonitorAlreadyExistsError{ID: id}
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &core.MonitorAlreadyExistsError{ID: id}
		}
		return nil, err
	}

	return s.ReadMonitor(ctx, id)
}

const monitorColumns = "id, name, endpoint, interval, body_regexp, last_task_at, last_probe_at, created_at"

func scanMonitor(row interface{ Scan(...interface{}) error }) (*core.Monitor, error) {
	m := &core.Monitor{}
	if err := row.Scan(&m.ID, &m.Name, &m.Endpoint, &m.Interval, &m.BodyRegexp, &m.LastTaskAt, &m.LastProbeAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Storage) ListMonitors(ctx context.Context, sort core.MonitorSortingOrder) ([]*core.Monitor, error) {
	order := "created_at ASC"
	if sort == core.LastTaskAtDesc {
		order = "last_task_at DESC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", monitorColumns, s.tables.Monitors, order))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []*core.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (s *Storage) ReadMonitor(ctx context.Context, id string) (*core.Monitor, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", monitorColumns, s.tables.Monitors), id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.MonitorNotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Storage) DeleteMonitor(ctx context.Context, id string) (*core.Monitor, error) {
	m, err := s.ReadMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tables.Monitors), id); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Storage) CreateTask(ctx context.Context, t *core.Task) (*core.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, timestamp, fk_monitor, status) VALUES (?, ?, ?, ?)", s.tables.Tasks),
		t.ID, t.Timestamp, t.MonitorID, string(t.Status),
	); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_task_at = ? WHERE id = ?", s.tables.Monitors),
		t.Timestamp, t.MonitorID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

const taskColumns = "id, timestamp, fk_monitor, status, locked_at, locked_by, completed_at"

func scanTask(row interface{ Scan(...interface{}) error }) (*core.Task, error) {
	t := &core.Task{}
	var status string
	if err := row.Scan(&t.ID, &t.Timestamp, &t.MonitorID, &status, &t.LockedAt, &t.LockedBy, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = core.TaskStatus(status)
	return t, nil
}

// LockTasks leases up to batchSize PENDING tasks to workerID. SQLite
// serializes writers, so this compound statement is race-free without
// SKIP LOCKED (unsupported by SQLite).
func (s *Storage) LockTasks(ctx context.Context, workerID string, batchSize int) ([]*core.Task, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s SET status = ?, locked_at = unixepoch(), locked_by = ?
		WHERE id IN (
			SELECT id FROM %[1]s WHERE status = ? ORDER BY timestamp ASC LIMIT ?
		)
		RETURNING %[2]s
	`, s.tables.Tasks, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, string(core.TaskRunning), workerID, string(core.TaskPending), batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Storage) UpdateTask(ctx context.Context, t *core.Task) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = ?, completed_at = ? WHERE id = ?", s.tables.Tasks),
		string(t.Status), t.CompletedAt, t.ID,
	)
	return err
}

func (s *Storage) RecordProbe(ctx context.Context, p *core.Probe) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var responseError *string
	if p.ResponseError != nil {
		v := string(*p.ResponseError)
		responseError = &v
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, timestamp, fk_monitor, fk_task, response_time, response_code, response_error, content_match)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Probes),
		p.ID, p.Timestamp, p.MonitorID, p.TaskID, p.ResponseTime, p.ResponseCode, responseError, p.ContentMatch,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_probe_at = ? WHERE id = ?", s.tables.Monitors),
		p.Timestamp, p.MonitorID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = ? WHERE id = ?", s.tables.Tasks),
		string(core.TaskCompleted), p.TaskID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) ListProbes(ctx context.Context, monitorID string, limit int) ([]*core.Probe, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, timestamp, fk_monitor, fk_task, response_time, response_code, response_error, content_match
			FROM %s WHERE fk_monitor = ? ORDER BY timestamp DESC LIMIT ?`, s.tables.Probes),
		monitorID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var probes []*core.Probe
	for rows.Next() {
		p := &core.Probe{}
		var responseError *string
		var taskID sql.NullString
		if err := rows.Scan(&p.ID, &p.Timestamp, &p.MonitorID, &taskID, &p.ResponseTime, &p.ResponseCode, &responseError, &p.ContentMatch); err != nil {
			return nil, err
		}
		p.TaskID = taskID.String
		if responseError != nil {
			e := core.ProbeResponseError(*responseError)
			p.ResponseError = &e
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}
