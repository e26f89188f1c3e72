package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "stash_session")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "stash_session", []byte(`{"version":1}`)))

	value, err := store.Get(ctx, "stash_session")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(value))

	require.NoError(t, store.Delete(ctx, "stash_session"))
	_, err = store.Get(ctx, "stash_session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "stash_session", []byte("payload")))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	value, err := reopened.Get(ctx, "stash_session")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(value))
}

func TestFileStoreOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("one")))
	require.NoError(t, store.Set(ctx, "key", []byte("two")))

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "two", string(value))
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "never-set"))
	require.NoError(t, store.Delete(ctx, "never-set"))
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "../escape/attempt", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(entries[0].Name()), entries[0].Name())
}

func TestFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))
	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(value))
	assert.Equal(t, 1, store.Len())

	// Mutating the returned slice must not leak into the store.
	value[0] = 'X'
	again, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(again))

	require.NoError(t, store.Delete(ctx, "key"))
	assert.Zero(t, store.Len())
}
