// Package materializer derives client facing read models from the event
// log: the funded and recent feeds, reply threads, and citation graph
// rankings. It never writes to the database.
package materializer

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "materializer")

// ErrNotFound marks lookups whose subject event does not exist.
var ErrNotFound = errors.New("event not found")

// Config options for the materializer service.
type Config struct {
	DB db.ReadOnlyDatabase
}

// Service answers feed, thread, and graph queries over the event log.
type Service struct {
	cfg           *Config
	announceCache *lru.Cache
}

// NewService creates a materializer backed by the given store. The
// announce cache keeps decoded metadata for the funded feed hot.
func NewService(cfg *Config) (*Service, error) {
	c, err := lru.New(params.KarstConfig().FeedCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create announce cache")
	}
	return &Service{cfg: cfg, announceCache: c}, nil
}
