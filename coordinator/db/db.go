// Package db defines the ability to create a new database
// for the coordinator and hides the concrete key value implementation.
package db

import "github.com/karstnet/karst/coordinator/db/kv"

// NewDB initializes a new database at the directory path.
func NewDB(dirPath string) (Database, error) {
	return kv.NewKVStore(dirPath)
}
