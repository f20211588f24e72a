package kv

import (
	"testing"

	"github.com/karstnet/karst/testing/require"
)

// setupDB instantiates and returns a Store instance backed by a temporary
// directory.
func setupDB(t testing.TB) *Store {
	store, err := NewKVStore(t.TempDir())
	require.NoError(t, err, "Failed to instantiate DB")
	t.Cleanup(func() {
		require.NoError(t, store.Close(), "Failed to close database")
	})
	return store
}
