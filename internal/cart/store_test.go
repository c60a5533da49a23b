package cart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	userID := uuid.New()
	c := Cart{}.AddItem(testLine(2500, 2))
	require.NoError(t, store.Save(userID, c))

	loaded := store.Load(userID)
	assert.Equal(t, c.Lines, loaded.Lines)
	assert.Equal(t, 5000, loaded.Total)
	assert.Equal(t, 2, loaded.ItemCount)
}

func TestStoreLoadMissingReturnsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	loaded := store.Load(uuid.New())
	assert.True(t, loaded.IsEmpty())
}

func TestStoreLoadCorruptReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	userID := uuid.New()
	path := filepath.Join(dir, snapshotPrefix+userID.String()+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded := store.Load(userID)
	assert.True(t, loaded.IsEmpty())
}

func TestStoreLoadRecomputesTamperedTotals(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	userID := uuid.New()
	c := Cart{}.AddItem(testLine(1000, 3))
	c.Total = 999999 // persisted totals are never trusted
	require.NoError(t, store.Save(userID, c))

	loaded := store.Load(userID)
	assert.Equal(t, 3000, loaded.Total)
	assert.Equal(t, 3, loaded.ItemCount)
}

func TestStoreClear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, store.Save(userID, Cart{}.AddItem(testLine(1000, 1))))
	require.NoError(t, store.Clear(userID))
	assert.True(t, store.Load(userID).IsEmpty())

	// Clearing an absent snapshot is not an error.
	assert.NoError(t, store.Clear(uuid.New()))
}
