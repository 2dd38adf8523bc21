package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/place-state-hub/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	store := snapshot.NewFileStore(path)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, snapshot.ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, store.Save(ctx, []byte(`{"v":2}`)))

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}
