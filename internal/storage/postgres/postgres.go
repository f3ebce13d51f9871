// Package postgres implements core.Storage over a client/server
// PostgreSQL database, following the connection and setup conventions
// of the teacher's internal/database package (single shared *sql.DB,
// lib/pq driver, prefix-parameterized DDL built in Go rather than
// static migration files — see DESIGN.md for why goose was dropped).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Scorpil/monico/internal/core"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
)

// Storage is a core.Storage backed by PostgreSQL.
type Storage struct {
	dsn    string
	tables core.TableNames
	db     *sql.DB
}

// New builds a postgres-backed Storage. Call Connect before use.
func New(dsn string, prefix string) *Storage {
	return &Storage{
		dsn:    dsn,
		tables: core.NewTableNames(prefix),
	}
}

// Connect opens the connection pool and probes it with a trivial
// query, retrying briefly to absorb the database container/process
// not yet being ready (a startup-only concern; probes are never
// retried per spec.md §7).
func (s *Storage) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return &core.StorageConnectionError{Err: err}
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(100_000_000 /* 100ms */))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	}); err != nil {
		db.Close()
		return &core.StorageConnectionError{Err: err}
	}

	s.db = db
	return nil
}

// Disconnect closes the pool. Safe to call more than once.
func (s *Storage) Disconnect(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) alreadyInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		s.tables.Monitors,
	).Scan(&exists)
	return exists, err
}

// Setup creates the monitors/tasks/probes tables, their enumerated
// status/error types, and supporting indexes. With force it first
// tears down any existing managed objects.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageSetupError{Message: "failed to begin setup transaction", Err: err}
	}
	defer tx.Rollback()

	ddl := fmt.Sprintf(`
		CREATE TABLE %[1]s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			interval INT NOT NULL,
			body_regexp TEXT NULL,
			last_task_at BIGINT NULL,
			last_probe_at BIGINT NULL,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		);
		CREATE INDEX %[1]s_last_probe_at_idx ON %[1]s (last_probe_at);
		CREATE INDEX %[1]s_created_at_idx ON %[1]s (created_at);

		CREATE TYPE %[2]s_status AS ENUM ('PENDING', 'RUNNING', 'COMPLETED', 'ABANDONED', 'FAILED');
		CREATE TABLE %[2]s (
			id TEXT PRIMARY KEY,
			timestamp BIGINT NOT NULL,
			fk_monitor TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
			status %[2]s_status NOT NULL,
			locked_at BIGINT NULL,
			locked_by TEXT NULL,
			completed_at BIGINT NULL
		);
		CREATE INDEX %[2]s_fk_monitor_idx ON %[2]s (fk_monitor);
		CREATE INDEX %[2]s_status_timestamp_idx ON %[2]s (status, timestamp);

		CREATE TYPE %[3]s_response_error AS ENUM ('TIMEOUT', 'CONNECTION_ERROR');
		CREATE TABLE %[3]s (
			id TEXT PRIMARY KEY,
			timestamp BIGINT NOT NULL,
			fk_monitor TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
			fk_task TEXT NULL REFERENCES %[2]s(id) ON DELETE SET NULL,
			response_time DOUBLE PRECISION NOT NULL,
			response_code INT NULL,
			response_error %[3]s_response_error NULL,
			content_match TEXT NULL
		);
		CREATE INDEX %[3]s_timestamp_idx ON %[3]s (timestamp);
		CREATE INDEX %[3]s_fk_monitor_idx ON %[3]s (fk_monitor);
	`, s.tables.Monitors, s.tables.Tasks, s.tables.Probes)

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return &core.StorageSetupError{Message: "failed to create schema", Err: err}
	}

	return tx.Commit()
}

// Teardown drops all managed objects. Idempotent.
func (s *Storage) Teardown(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		DROP TABLE IF EXISTS %[3]s;
		DROP TYPE IF EXISTS %[3]s_response_error;
		DROP TABLE IF EXISTS %[2]s;
		DROP TYPE IF EXISTS %[2]s_status;
		DROP TABLE IF EXISTS %[1]s;
	`, s.tables.Monitors, s.tables.Tasks, s.tables.Probes)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Storage) CreateMonitor(ctx context.Context, m *core.Monitor) (*core.Monitor, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, name, endpoint, interval, body_regexp) VALUES ($1, $2, $3, $4, $5)`, s.tables.Monitors),
		id, m.Name, m.Endpoint, m.Interval, m.BodyRegexp,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
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
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", monitorColumns, s.tables.Monitors), id)
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
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tables.Monitors), id); err != nil {
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
		fmt.Sprintf("INSERT INTO %s (id, timestamp, fk_monitor, status) VALUES ($1, $2, $3, $4)", s.tables.Tasks),
		t.ID, t.Timestamp, t.MonitorID, string(t.Status),
	); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_task_at = $1 WHERE id = $2", s.tables.Monitors),
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

// LockTasks leases up to batchSize PENDING tasks to workerID in one
// compound UPDATE ... RETURNING statement; the inner SELECT's
// FOR UPDATE SKIP LOCKED keeps two concurrent callers from claiming the
// same row.
func (s *Storage) LockTasks(ctx context.Context, workerID string, batchSize int) ([]*core.Task, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s SET status = $1, locked_at = EXTRACT(EPOCH FROM NOW()), locked_by = $2
		WHERE id IN (
			SELECT id FROM %[1]s WHERE status = $3 ORDER BY timestamp ASC LIMIT $4 FOR UPDATE SKIP LOCKED
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
		fmt.Sprintf("UPDATE %s SET status = $1, completed_at = $2 WHERE id = $3", s.tables.Tasks),
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.tables.Probes),
		p.ID, p.Timestamp, p.MonitorID, p.TaskID, p.ResponseTime, p.ResponseCode, responseError, p.ContentMatch,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_probe_at = $1 WHERE id = $2", s.tables.Monitors),
		p.Timestamp, p.MonitorID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1 WHERE id = $2", s.tables.Tasks),
		string(core.TaskCompleted), p.TaskID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) ListProbes(ctx context.Context, monitorID string, limit int) ([]*core.Probe, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, timestamp, fk_monitor, fk_task, response_time, response_code, response_error, content_match
			FROM %s WHERE fk_monitor = $1 ORDER BY timestamp DESC LIMIT $2`, s.tables.Probes),
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
