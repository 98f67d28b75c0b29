package tokenstore

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Pair{Access: "acc-1", Refresh: "ref-1"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "acc-1", Refresh: "ref-1"}, got)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Pair{Access: "old", Refresh: "old-r"}))
	require.NoError(t, store.Save(Pair{Access: "new", Refresh: "new-r"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "new", Refresh: "new-r"}, got)
}

func TestStore_SaveAccessKeepsRefresh(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Pair{Access: "old", Refresh: "keep-me"}))
	require.NoError(t, store.SaveAccess("fresh"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Access)
	assert.Equal(t, "keep-me", got.Refresh)
}

func TestStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Pair{}, got)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Pair{Access: "a", Refresh: "r"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Pair{}, got)
}

func TestOpen_CreatesStateDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(Pair{Access: "a"}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.Access)
}
