package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Scorpil/monico/internal/core"
	"github.com/Scorpil/monico/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

// TestStorage runs the shared conformance suite against a real
// Postgres instance. Set MONICO_TEST_POSTGRES_DSN to enable it; it is
// skipped by default since it needs a running server.
func TestStorage(t *testing.T) {
	dsn := os.Getenv("MONICO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MONICO_TEST_POSTGRES_DSN not set, skipping postgres integration test")
	}

	storagetest.Run(t, func(t *testing.T) core.Storage {
		s := New(dsn, "monico_test")
		require.NoError(t, s.Connect(context.Background()))
		t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
		return s
	})
}
