// Package availability probes registered hosts for the content they
// claim to serve, maintains their rolling availability scores, and moves
// their registry status through the trust lifecycle.
package availability

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/karstnet/karst/async"
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "availability")

// Config options for the availability monitor.
type Config struct {
	DB        db.Database
	GenesisMS int64
	// Interval between probe batches. Zero disables the loop; RunChecks
	// can still be driven manually.
	Interval time.Duration
	// Transport overrides the probe HTTP transport, used by tests.
	Transport http.RoundTripper
}

// Service drives periodic spot checks against the host registry.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc
	hc     *http.Client
	rng    *rand.Rand

	lock    sync.RWMutex
	lastErr error
}

// NewService creates the monitor. The probe client enforces the spot
// check timeout per request.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	hc := &http.Client{Timeout: params.KarstConfig().SpotCheckTimeout}
	if cfg.Transport != nil {
		hc.Transport = cfg.Transport
	}
	return &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		hc:     hc,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the probe loop when an interval is configured.
func (s *Service) Start() {
	if s.cfg.Interval <= 0 {
		log.Info("Spot check loop disabled")
		return
	}
	log.WithField("interval", s.cfg.Interval).Info("Starting availability monitor")
	s.runBatch()
	async.RunEvery(s.ctx, s.cfg.Interval, s.runBatch)
}

// Stop cancels future probe batches. An in-flight batch runs to
// completion against the cancelled context and exits early.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status returns the error of the most recent probe batch, if any.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastErr
}

func (s *Service) runBatch() {
	err := s.RunChecks(s.ctx)
	if err != nil {
		log.WithError(err).Error("Spot check batch failed")
	}
	s.lock.Lock()
	s.lastErr = err
	s.lock.Unlock()
}
