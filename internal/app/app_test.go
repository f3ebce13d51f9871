package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Scorpil/monico/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		SQLiteURI:  "sqlite://" + filepath.Join(t.TempDir(), "monico.db"),
		HealthAddr: "127.0.0.1:0",
	}
	a, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.Setup(ctx, true))
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	return a
}

func TestCreateListDeleteMonitor(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	m, err := a.CreateMonitor(ctx, "m1", "example", "example.com", 60, nil)
	require.NoError(t, err)
	require.Equal(t, "m1", m.ID)

	monitors, err := a.ListMonitors(ctx)
	require.NoError(t, err)
	require.Len(t, monitors, 1)

	deleted, err := a.DeleteMonitor(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "m1", deleted.ID)

	monitors, err = a.ListMonitors(ctx)
	require.NoError(t, err)
	require.Empty(t, monitors)
}

func TestStatusUnknownMonitor(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, _, err := a.Status(ctx, "missing", 10)
	require.Error(t, err)
}

func TestCreateMonitorInvalidAttributeNeverReachesStorage(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.CreateMonitor(ctx, "m1", "", "example.com", 60, nil)
	require.Error(t, err)

	monitors, err := a.ListMonitors(ctx)
	require.NoError(t, err)
	require.Empty(t, monitors)
}
