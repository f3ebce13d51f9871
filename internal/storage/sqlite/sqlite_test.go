package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Scorpil/monico/internal/core"
	"github.com/Scorpil/monico/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) core.Storage {
		dir := t.TempDir()
		s := New(filepath.Join(dir, "monico.db"), "")
		require.NoError(t, s.Connect(context.Background()))
		t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
		return s
	})
}
