package db

import "github.com/karstnet/karst/coordinator/db/iface"

// ReadOnlyDatabase exposes the query surface of the coordinator database.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// Database exposes the full persistence surface of the coordinator.
type Database = iface.Database
