// Package storagetest exercises a core.Storage implementation against
// one fixed set of assertions, so the postgres and sqlite backends are
// held to identical behavioral contracts (grounded on the original
// project's StorageBackendTestSuite, which both its Postgres and
// SQLite backends ran against).
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/Scorpil/monico/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newStorage() (a fresh, already-Connect-ed backend)
// against the shared suite. Each sub-test calls Setup(force=true)
// before it runs and Teardown after, matching the per-method
// setup/teardown of the original pytest suite.
func Run(t *testing.T, newStorage func(t *testing.T) core.Storage) {
	t.Helper()

	withStorage := func(t *testing.T, fn func(t *testing.T, s core.Storage)) {
		t.Helper()
		ctx := context.Background()
		s := newStorage(t)
		require.NoError(t, s.Setup(ctx, true))
		t.Cleanup(func() {
			_ = s.Teardown(ctx)
		})
		fn(t, s)
	}

	t.Run("DoubleSetupFails", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			err := s.Setup(context.Background(), false)
			var setupErr *core.StorageSetupError
			assert.ErrorAs(t, err, &setupErr)
		})
	})

	t.Run("CreateMonitor", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			regexp := "[a-z]+"
			m, err := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, &regexp)
			require.NoError(t, err)

			created, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, m.Name, created.Name)
			assert.Equal(t, m.Endpoint, created.Endpoint)
			assert.Equal(t, m.Interval, created.Interval)
			require.NotNil(t, created.BodyRegexp)
			assert.Equal(t, regexp, *created.BodyRegexp)
			assert.Nil(t, created.LastTaskAt)
			assert.Nil(t, created.LastProbeAt)
		})
	})

	t.Run("CreateMonitorRejectsDuplicateID", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, err := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			require.NoError(t, err)
			created, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)

			_, err = s.CreateMonitor(ctx, created)
			var existsErr *core.MonitorAlreadyExistsError
			assert.ErrorAs(t, err, &existsErr)
		})
	})

	t.Run("ListMonitorsCreatedOrder", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m1, _ := core.NewMonitor("", "monitor_one", "http://example.com", 60, nil)
			m2, _ := core.NewMonitor("", "monitor_two", "http://example.com", 60, nil)
			created1, err := s.CreateMonitor(ctx, m1)
			require.NoError(t, err)
			created2, err := s.CreateMonitor(ctx, m2)
			require.NoError(t, err)

			listed, err := s.ListMonitors(ctx, core.CreatedAtAsc)
			require.NoError(t, err)
			var ids []string
			for _, m := range listed {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, []string{created1.ID, created2.ID}, ids)
		})
	})

	t.Run("ReadMonitor", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			regexp := "[a-z]+"
			m, err := core.NewMonitor("test_id", "test_monitor_name", "http://example.com", 60, &regexp)
			require.NoError(t, err)
			_, err = s.CreateMonitor(ctx, m)
			require.NoError(t, err)

			read, err := s.ReadMonitor(ctx, "test_id")
			require.NoError(t, err)
			assert.Equal(t, m.ID, read.ID)
			assert.Equal(t, m.Name, read.Name)
			assert.Equal(t, m.Endpoint, read.Endpoint)
			assert.Equal(t, m.Interval, read.Interval)
			require.NotNil(t, read.BodyRegexp)
			assert.Equal(t, regexp, *read.BodyRegexp)
		})
	})

	t.Run("ReadMonitorNotFound", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			_, err := s.ReadMonitor(context.Background(), "test_id")
			var notFoundErr *core.MonitorNotFoundError
			assert.ErrorAs(t, err, &notFoundErr)
		})
	})

	t.Run("DeleteMonitor", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("test_id", "test_monitor_name", "http://example.com", 60, nil)
			_, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)

			_, err = s.DeleteMonitor(ctx, "test_id")
			require.NoError(t, err)

			_, err = s.ReadMonitor(ctx, "test_id")
			var notFoundErr *core.MonitorNotFoundError
			assert.ErrorAs(t, err, &notFoundErr)
		})
	})

	t.Run("CreateTask", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			monitor, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)

			task := core.NewTask(monitor.ID)
			created, err := s.CreateTask(ctx, task)
			require.NoError(t, err)
			assert.Equal(t, core.TaskPending, created.Status)

			updated, err := s.ReadMonitor(ctx, monitor.ID)
			require.NoError(t, err)
			require.NotNil(t, updated.LastTaskAt)
			assert.Equal(t, task.Timestamp, *updated.LastTaskAt)
		})
	})

	t.Run("LockTasksExclusivity", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			monitor, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)

			task1 := core.NewTask(monitor.ID)
			task1.Timestamp = 1700000000
			task2 := core.NewTask(monitor.ID)
			task2.Timestamp = 1700000001
			task3 := core.NewTask(monitor.ID)
			task3.Timestamp = 1700000002
			for _, task := range []*core.Task{task1, task2, task3} {
				_, err := s.CreateTask(ctx, task)
				require.NoError(t, err)
			}

			locked, err := s.LockTasks(ctx, "test_worker", 2)
			require.NoError(t, err)
			require.Len(t, locked, 2)

			sort.Slice(locked, func(i, j int) bool { return locked[i].Timestamp < locked[j].Timestamp })
			assert.Equal(t, task1.ID, locked[0].ID)
			assert.Equal(t, task2.ID, locked[1].ID)
			for _, task := range locked {
				assert.Equal(t, core.TaskRunning, task.Status)
				require.NotNil(t, task.LockedBy)
				assert.Equal(t, "test_worker", *task.LockedBy)
				assert.NotNil(t, task.LockedAt)
			}

			// The third task is still PENDING and available to a second lease.
			remaining, err := s.LockTasks(ctx, "other_worker", 2)
			require.NoError(t, err)
			require.Len(t, remaining, 1)
			assert.Equal(t, task3.ID, remaining[0].ID)
		})
	})

	t.Run("UpdateTask", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			monitor, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)
			task, err := s.CreateTask(ctx, core.NewTask(monitor.ID))
			require.NoError(t, err)

			task.Abandon()
			require.NoError(t, s.UpdateTask(ctx, task))
		})
	})

	t.Run("RecordProbe", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			monitor, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)
			task, err := s.CreateTask(ctx, core.NewTask(monitor.ID))
			require.NoError(t, err)

			code := 200
			match := "Hello World"
			probe := core.NewProbe(monitor.ID, task.ID, 0.1, &code, nil, &match)
			require.NoError(t, s.RecordProbe(ctx, probe))

			updatedMonitor, err := s.ReadMonitor(ctx, monitor.ID)
			require.NoError(t, err)
			require.NotNil(t, updatedMonitor.LastProbeAt)
			assert.Equal(t, probe.Timestamp, *updatedMonitor.LastProbeAt)

			probes, err := s.ListProbes(ctx, monitor.ID, 10)
			require.NoError(t, err)
			require.Len(t, probes, 1)
			assert.Equal(t, probe.ID, probes[0].ID)
			assert.Equal(t, task.ID, probes[0].TaskID)
		})
	})

	t.Run("ListProbesNewestFirst", func(t *testing.T) {
		withStorage(t, func(t *testing.T, s core.Storage) {
			ctx := context.Background()
			m, _ := core.NewMonitor("", "test_monitor_name", "http://example.com", 60, nil)
			monitor, err := s.CreateMonitor(ctx, m)
			require.NoError(t, err)
			task, err := s.CreateTask(ctx, core.NewTask(monitor.ID))
			require.NoError(t, err)

			code := 200
			var probes []*core.Probe
			for i := 0; i < 3; i++ {
				p := core.NewProbe(monitor.ID, task.ID, 0.1, &code, nil, nil)
				p.Timestamp = 1700000000 + int64(i)
				require.NoError(t, s.RecordProbe(ctx, p))
				probes = append(probes, p)
			}

			listed, err := s.ListProbes(ctx, monitor.ID, 2)
			require.NoError(t, err)
			require.Len(t, listed, 2)
			assert.Equal(t, probes[2].ID, listed[0].ID)
			assert.Equal(t, probes[1].ID, listed[1].ID)
		})
	})
}
