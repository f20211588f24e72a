// Package scheduler drives epoch settlement off the wall clock. Each
// tick settles the most recently closed epoch once, so a coordinator
// that stays up settles every epoch exactly one epoch after it closes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/karstnet/karst/async"
	coreepoch "github.com/karstnet/karst/coordinator/core/epoch"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/time/epochs"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "scheduler")

// Settler produces the settlement result for one closed epoch.
type Settler interface {
	Settle(ctx context.Context, epoch primitives.Epoch) (*coreepoch.Result, error)
}

// Config options for the settlement scheduler.
type Config struct {
	DB        db.Database
	Settler   Settler
	GenesisMS int64
	// Interval between ticks. Zero disables the loop.
	Interval time.Duration
	// OnSettle fires after every successful tick that settled an epoch.
	OnSettle func(*coreepoch.Result)
	// OnError fires when a settle attempt fails. The epoch is retried on
	// the next tick.
	OnError func(error)
}

// Service periodically settles the previous epoch.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	lock sync.Mutex
	// lastSettled is -1 until any epoch has settled.
	lastSettled int64
	lastErr     error
}

// NewService builds the scheduler, bootstrapping its settled marker from
// the store so restarts do not re-settle.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	latest, ok, err := cfg.DB.LatestSettledEpoch(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	lastSettled := int64(-1)
	if ok {
		lastSettled = int64(latest)
	}
	return &Service{cfg: cfg, ctx: ctx, cancel: cancel, lastSettled: lastSettled}, nil
}

// Start ticks once immediately, then on every interval.
func (s *Service) Start() {
	if s.cfg.Interval <= 0 {
		log.Info("Settlement scheduler disabled")
		return
	}
	log.WithField("interval", s.cfg.Interval).Info("Starting settlement scheduler")
	s.tick()
	async.RunEvery(s.ctx, s.cfg.Interval, s.tick)
}

// Stop cancels future ticks. An in-flight settle finishes, the
// idempotence guard makes a torn tick harmless.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status reports the error of the most recent tick, if any.
func (s *Service) Status() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastErr
}

// LastSettled returns the marker the scheduler has advanced to, -1 when
// nothing has settled yet.
func (s *Service) LastSettled() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastSettled
}

func (s *Service) tick() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastErr = s.tickLocked(s.ctx)
}

// Tick runs one scheduling decision synchronously, settling the previous
// epoch when it is newer than the marker.
func (s *Service) Tick(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	err := s.tickLocked(ctx)
	s.lastErr = err
	return err
}

func (s *Service) tickLocked(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "scheduler.tick")
	defer span.End()

	current := epochs.CurrentEpoch(s.cfg.GenesisMS)
	target := int64(current) - 1
	if target < 0 || target <= s.lastSettled {
		return nil
	}
	res, err := s.cfg.Settler.Settle(ctx, primitives.Epoch(target))
	if err != nil {
		log.WithError(err).WithField("epoch", target).Error("Settle attempt failed")
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
		return err
	}
	s.lastSettled = target
	lastSettledEpochGauge.Set(float64(target))
	if !res.AlreadySettled {
		epochsSettledTotal.Inc()
	}
	if s.cfg.OnSettle != nil {
		s.cfg.OnSettle(res)
	}
	// Receipts below the ingest window can neither be resubmitted nor
	// settled again; drop them.
	cutoff := primitives.Epoch(target).SubOrZero(1)
	if pruned, err := s.cfg.DB.PruneReceipts(ctx, cutoff); err != nil {
		log.WithError(err).Warn("Could not prune settled receipts")
	} else if pruned > 0 {
		log.WithFields(logrus.Fields{"pruned": pruned, "olderThan": cutoff}).Debug("Pruned settled receipts")
	}
	return nil
}
