// Package kv defines a bolt-db, key-value store implementation of the
// coordinator Database interface.
package kv

import (
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombbolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

// CoordinatorDbDirName is the name of the directory containing the
// coordinator database.
const CoordinatorDbDirName = "coordinatordata"

const (
	databaseFileName      = "coordinator.db"
	boltAllocSize         = 8 * 1024 * 1024
	dbFilePermission      = 0600
	dbDirectoryPermission = 0700
)

// Store defines an implementation of the coordinator Database interface
// using bolt-db as the underlying persistent kv-store.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore initializes a new bolt-db key-value store at the directory
// path specified, creates the kv-buckets based on the schema, and stores
// an open connection db object as a property of the Store struct.
func NewKVStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, dbDirectoryPermission); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(
		datafile,
		dbFilePermission,
		&bolt.Options{
			Timeout:         1 * time.Second,
			InitialMmapSize: 10e6,
		},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	boltDB.AllocSize = boltAllocSize

	kv := &Store{db: boltDB, databasePath: dirPath}

	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			eventsBucket,
			poolsBucket,
			hostsBucket,
			serveRecordsBucket,
			receiptsBucket,
			summariesBucket,
			pinsBucket,
			edgesBucket,
			spotChecksBucket,
			metadataBucket,
			// Indices buckets.
			eventIDIndicesBucket,
			eventRefIndicesBucket,
			eventKindIndicesBucket,
			eventAuthorIndicesBucket,
			serveCIDIndicesBucket,
			receiptEpochIndicesBucket,
			summaryHostIndicesBucket,
			pinCIDIndicesBucket,
			edgeTargetIndicesBucket,
			edgeOutCountsBucket,
			edgeInCountsBucket,
		)
	}); err != nil {
		return nil, err
	}
	err = prometheus.Register(createBoltCollector(kv.db))

	return kv, err
}

// ClearDB removes the previously stored database in the data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(s.db))
	return os.Remove(path.Join(s.databasePath, databaseFileName))
}

// Close closes the underlying bolt-db database.
func (s *Store) Close() error {
	prometheus.Unregister(createBoltCollector(s.db))
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// createBoltCollector returns a prometheus collector specifically
// configured for bolt-db.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombbolt.New("coordinatorDB", db)
}
