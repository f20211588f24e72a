package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/time/epochs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
)

// spotCheckResponse is the body a host returns from its spot check
// endpoint.
type spotCheckResponse struct {
	Verified bool `json:"verified"`
}

// RunChecks probes every active host once and folds the outcomes into
// availability scores and registry status transitions.
func (s *Service) RunChecks(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "availability.RunChecks")
	defer span.End()
	cfg := params.KarstConfig()

	hosts, err := s.cfg.DB.ActiveHosts(ctx)
	if err != nil {
		return errors.Wrap(err, "could not list active hosts")
	}
	current := epochs.CurrentEpoch(s.cfg.GenesisMS)

	targets := make([]*probeTarget, 0, len(hosts))
	for _, host := range hosts {
		serves, err := s.cfg.DB.ServeRecordsByHost(ctx, host.Pubkey)
		if err != nil {
			return errors.Wrap(err, "could not read serve records")
		}
		if len(serves) == 0 {
			continue
		}
		pick := serves[s.rng.Intn(len(serves))]
		targets = append(targets, &probeTarget{host: host, cid: pick.CID})
	}
	if len(targets) == 0 {
		log.Debug("No hosts eligible for spot checks")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.SpotCheckConcurrency)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			result := s.probe(gctx, target, current)
			if err := s.cfg.DB.SaveSpotCheck(gctx, result); err != nil {
				return errors.Wrap(err, "could not save spot check")
			}
			outcome := "fail"
			if result.Passed {
				outcome = "pass"
			}
			spotChecksTotal.WithLabelValues(outcome).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.applyScores(ctx, targets, current)
}

type probeTarget struct {
	host *types.HostRecord
	cid  [32]byte
}

// probe issues one spot check request. Failures of any shape produce a
// failed result rather than an error, the outcome is data.
func (s *Service) probe(ctx context.Context, target *probeTarget, epoch primitives.Epoch) *types.SpotCheckResult {
	result := &types.SpotCheckResult{
		Host:      target.host.Pubkey,
		CID:       target.cid,
		Epoch:     epoch,
		CheckedAt: time.Now().UnixMilli(),
	}
	url := fmt.Sprintf("%s/spot-check/%s", target.host.Endpoint, bytesutil.EncodeHex(target.cid[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	started := time.Now()
	resp, err := s.hc.Do(req)
	result.LatencyMS = time.Since(started).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return result
	}
	body := &spotCheckResponse{}
	if err := json.NewDecoder(resp.Body).Decode(body); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Passed = body.Verified
	return result
}

// applyScores recomputes the windowed score of every probed host and
// applies the status transitions.
func (s *Service) applyScores(ctx context.Context, targets []*probeTarget, current primitives.Epoch) error {
	window := params.KarstConfig().SpotCheckWindowEpochs
	since := current.SubOrZero(window - 1)
	for _, target := range targets {
		results, err := s.cfg.DB.SpotChecksSince(ctx, target.host.Pubkey, since)
		if err != nil {
			return errors.Wrap(err, "could not read spot check window")
		}
		score, hasResults := WindowScore(results, current)
		if !hasResults {
			continue
		}
		next := NextStatus(target.host.Status, score)
		if err := s.cfg.DB.SaveHostAvailability(ctx, target.host.Pubkey, score, next); err != nil {
			return errors.Wrap(err, "could not save availability")
		}
		if next != target.host.Status {
			log.WithFields(logrus.Fields{
				"host":  fmt.Sprintf("%#x", target.host.Pubkey[:8]),
				"score": fmt.Sprintf("%.2f", score),
				"from":  target.host.Status,
				"to":    next,
			}).Info("Host status transition")
		}
	}
	return nil
}
