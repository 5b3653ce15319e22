package storage

import (
	"path/filepath"
	"testing"

	"tickstream/src/logger"
	"tickstream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger.NewLogger("error", "test"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize())
	return store
}

func TestInitializeSeedsDefault(t *testing.T) {
	store := newTestStore(t)

	wl, err := store.Get(models.DefaultWatchlistID)
	require.NoError(t, err)
	assert.Equal(t, "Default", wl.Name)
	assert.Empty(t, wl.Symbols)

	// Initialize is idempotent.
	require.NoError(t, store.Initialize())
	lists, err := store.All()
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestCreateRenameDelete(t *testing.T) {
	store := newTestStore(t)

	wl, err := store.Create("Momentum")
	require.NoError(t, err)
	assert.Len(t, wl.ID, 8)
	assert.Equal(t, "Momentum", wl.Name)

	require.NoError(t, store.Rename(wl.ID, "Breakouts"))
	got, err := store.Get(wl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Breakouts", got.Name)

	require.NoError(t, store.Delete(wl.ID))
	_, err = store.Get(wl.ID)
	assert.ErrorIs(t, err, ErrWatchlistNotFound)
}

func TestDeleteDefaultRejected(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Delete(models.DefaultWatchlistID), ErrDefaultWatchlist)
}

func TestRenameMissingWatchlist(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Rename("nope", "X"), ErrWatchlistNotFound)
}

func TestAddAndRemoveEntries(t *testing.T) {
	store := newTestStore(t)

	wl, err := store.AddEntry(models.DefaultWatchlistID, "INFY", "NSE")
	require.NoError(t, err)
	require.Len(t, wl.Symbols, 1)

	wl, err = store.AddEntry(models.DefaultWatchlistID, "TCS", "NSE")
	require.NoError(t, err)
	require.Len(t, wl.Symbols, 2)
	assert.Equal(t, "INFY", wl.Symbols[0].Symbol)
	assert.Equal(t, "TCS", wl.Symbols[1].Symbol)

	// Duplicates within one list are rejected.
	_, err = store.AddEntry(models.DefaultWatchlistID, "INFY", "NSE")
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// Same symbol on another exchange is a distinct entry.
	_, err = store.AddEntry(models.DefaultWatchlistID, "INFY", "BSE")
	require.NoError(t, err)

	wl, err = store.RemoveEntry(models.DefaultWatchlistID, "INFY", "NSE")
	require.NoError(t, err)
	assert.Len(t, wl.Symbols, 2)

	_, err = store.RemoveEntry(models.DefaultWatchlistID, "INFY", "NSE")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestAddEntryMissingWatchlist(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddEntry("nope", "INFY", "NSE")
	assert.ErrorIs(t, err, ErrWatchlistNotFound)
}

func TestAllEntriesUnion(t *testing.T) {
	store := newTestStore(t)

	second, err := store.Create("Second")
	require.NoError(t, err)

	_, err = store.AddEntry(models.DefaultWatchlistID, "INFY", "NSE")
	require.NoError(t, err)
	_, err = store.AddEntry(second.ID, "INFY", "NSE")
	require.NoError(t, err)
	_, err = store.AddEntry(second.ID, "TCS", "NSE")
	require.NoError(t, err)

	entries, err := store.AllEntries()
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.MWatchlistEntry{
		{Symbol: "INFY", Exchange: "NSE"},
		{Symbol: "TCS", Exchange: "NSE"},
	}, entries)
}

func TestDeleteCascadesEntries(t *testing.T) {
	store := newTestStore(t)

	wl, err := store.Create("Temp")
	require.NoError(t, err)
	_, err = store.AddEntry(wl.ID, "INFY", "NSE")
	require.NoError(t, err)

	require.NoError(t, store.Delete(wl.ID))

	entries, err := store.AllEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
