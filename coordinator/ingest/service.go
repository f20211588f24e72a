// Package ingest implements the coordinator's write path: signed event
// envelopes and egress receipts enter here, are validated and verified,
// and are applied to the database together with their side effects.
package ingest

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/karstnet/karst/coordinator/cache"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/lightning"
	"github.com/kevinms/leakybucket-go"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ingest")

// freeWriteBurst is how many free writes an author may burst above the
// sustained limiter rate.
const freeWriteBurst = 10

// Config options for the ingest service.
type Config struct {
	DB          db.Database
	Lightning   lightning.Backend // nil runs the dev mode payment path
	Bindings    *cache.PaymentBindings
	MintPubkeys []ed25519.PublicKey
	GenesisMS   int64
	RequirePow  bool
	// FreeWritesPerSecond bounds zero sat writes per author. Zero
	// disables the limiter.
	FreeWritesPerSecond float64
}

// Service verifies and applies incoming events and receipts.
type Service struct {
	cfg         *Config
	operatorKey ed25519.PrivateKey
	operatorPub [32]byte
	freeLimiter *leakybucket.Collector
	eventRate   *ratecounter.RateCounter
}

// NewService creates the ingest service. The operator key is loaded so
// coordinator authored events can bypass the proof of work gate.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	opKey, err := cfg.DB.OperatorKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not load operator key")
	}
	pub, ok := opKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("operator key is not ed25519")
	}
	s := &Service{
		cfg:         cfg,
		operatorKey: opKey,
		operatorPub: bytesutil.ToBytes32(pub),
		eventRate:   ratecounter.NewRateCounter(time.Second),
	}
	if cfg.FreeWritesPerSecond > 0 {
		s.freeLimiter = leakybucket.NewCollector(
			cfg.FreeWritesPerSecond,
			int64(cfg.FreeWritesPerSecond)*freeWriteBurst,
			true, /* deleteEmptyBuckets */
		)
	}
	if cfg.Lightning == nil {
		log.Warn("No lightning backend attached, paid writes are not payment gated")
	}
	return s, nil
}

// EventRate reports accepted events per second over the last second.
func (s *Service) EventRate() int64 {
	return s.eventRate.Rate()
}

// OperatorPubkey returns the coordinator's signing identity.
func (s *Service) OperatorPubkey() [32]byte {
	return s.operatorPub
}
