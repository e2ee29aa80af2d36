package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "pc-local-state", `{"clients":[]}`))

	value, ok, err := store.Get(ctx, "pc-local-state")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"clients":[]}`, value)
}

func TestStore_GetAbsentKey(t *testing.T) {
	store := newTestStore(t)

	value, ok, err := store.Get(context.Background(), "never-written")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestStore_PutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "v1"))
	require.NoError(t, store.Put(ctx, "k", "v2"))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", value)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k")) // absent key is fine

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cache:v1:/app.js", "body-a"))
	require.NoError(t, store.Put(ctx, "cache:v1:/index.html", "body-b"))
	require.NoError(t, store.Put(ctx, "pc-sync-queue", "[]"))

	entries, err := store.List(ctx, "cache:")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"cache:v1:/app.js":     "body-a",
		"cache:v1:/index.html": "body-b",
	}, entries)
}

func TestStore_DeletePrefixExcept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "cache:v1:/app.js", "old"))
	require.NoError(t, store.Put(ctx, "cache:v2:/app.js", "new"))
	require.NoError(t, store.Put(ctx, "pc-local-state", "{}"))

	deleted, err := store.DeletePrefixExcept(ctx, "cache:", "cache:v2:")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := store.List(ctx, "cache:")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cache:v2:/app.js": "new"}, entries)

	// Keys outside the prefix are untouched.
	_, ok, err := store.Get(ctx, "pc-local-state")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "pc-sync-queue", `[{"id":"a1"}]`))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	value, ok, err := reopened.Get(ctx, "pc-sync-queue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a1"}]`, value)
}
