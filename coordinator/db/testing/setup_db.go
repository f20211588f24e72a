// Package testing allows for spinning up a real coordinator database for
// testing purposes.
package testing

import (
	"testing"

	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/coordinator/db/kv"
	"github.com/karstnet/karst/testing/require"
)

// SetupDB instantiates and returns a database backed by a key value store
// in a temporary directory.
func SetupDB(t testing.TB) db.Database {
	s, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err, "Failed to instantiate DB")
	t.Cleanup(func() {
		require.NoError(t, s.Close(), "Failed to close database")
	})
	return s
}
