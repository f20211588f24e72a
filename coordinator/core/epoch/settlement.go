// Package epoch implements the settlement engine. Closing an epoch turns
// the receipts proven during it into bounty pool drains, host rewards,
// aggregator fees, the egress royalty, and auto bid credits, and persists
// the per group summary rows atomically with the drains.
package epoch

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"math"
	"sort"
	"time"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "settlement")

// Result reports the totals of one settlement run. A run against an
// epoch that was settled before returns the zero valued result with
// AlreadySettled set.
type Result struct {
	Epoch             primitives.Epoch `json:"epoch"`
	Groups            int64            `json:"groups"`
	EligibleGroups    int64            `json:"eligible_groups"`
	PaidSats          int64            `json:"paid_sats"`
	AggFeeSats        int64            `json:"agg_fee_sats"`
	EgressRoyaltySats int64            `json:"egress_royalty_sats"`
	AutoBidSats       int64            `json:"auto_bid_sats"`
	PinDrainSats      int64            `json:"pin_drain_sats"`
	AlreadySettled    bool             `json:"already_settled"`
}

// Settler computes and persists epoch settlements. The summary event
// appended at the end of each run is signed with the operator key.
type Settler struct {
	db          db.Database
	operatorKey ed25519.PrivateKey
}

// NewSettler creates a settler bound to a database and operator key.
func NewSettler(d db.Database, operatorKey ed25519.PrivateKey) *Settler {
	return &Settler{db: d, operatorKey: operatorKey}
}

// group aggregates the receipts one host proved for one cid within the
// epoch being settled.
type group struct {
	host       [32]byte
	count      int64
	clients    map[[32]byte]struct{}
	provenSats int64
	reward     int64
}

func (g *group) eligible() bool {
	return g.count >= 1 && g.provenSats > 0
}

// cidAggregate collects every group of one cid plus the proven total
// across all of its receipts, eligibility aside.
type cidAggregate struct {
	cid        [32]byte
	groups     []*group
	provenSats int64
}

// PayoutWeight scales proven egress by client diversity. Doubling the
// distinct clients adds one extra share of the proven sats, so the
// weight is non decreasing in both arguments.
func PayoutWeight(provenSats, uniqueClients int64) float64 {
	if provenSats <= 0 || uniqueClients <= 0 {
		return 0
	}
	return float64(provenSats) * (1 + math.Log2(float64(uniqueClients)))
}

// CIDEpochCap bounds how much of a pool may drain toward payouts in a
// single epoch. The cap never exceeds the balance and is monotonic in
// it.
func CIDEpochCap(balance int64) int64 {
	if balance <= 0 {
		return 0
	}
	return int64(float64(balance) * params.KarstConfig().CIDEpochCapPct)
}

// Settle closes the given epoch. Receipts proven during it are grouped
// by (host, cid), pool drains and rewards are computed per cid, and all
// rows persist in one transaction together with the summary event. The
// run is idempotent: settling an epoch twice leaves the stored rows
// untouched and reports zero drains.
func (s *Settler) Settle(ctx context.Context, epoch primitives.Epoch) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "settlement.Settle")
	defer span.End()
	cfg := params.KarstConfig()

	if last, ok, err := s.db.LatestSettledEpoch(ctx); err != nil {
		return nil, err
	} else if ok && epoch <= last {
		return &Result{Epoch: epoch, AlreadySettled: true}, nil
	}

	receipts, err := s.db.ReceiptsByEpoch(ctx, epoch)
	if err != nil {
		return nil, errors.Wrap(err, "could not gather receipts")
	}

	aggregates := groupReceipts(receipts)
	res := &Result{Epoch: epoch}
	settlement := &types.Settlement{Epoch: epoch}

	for _, agg := range aggregates {
		res.Groups += int64(len(agg.groups))

		var eligible []*group
		for _, g := range agg.groups {
			if g.eligible() {
				eligible = append(eligible, g)
			}
		}
		res.EligibleGroups += int64(len(eligible))

		var egressRoyalty int64
		if len(eligible) > 0 {
			egressRoyalty, err = s.distribute(ctx, agg.cid, eligible, settlement, res, epoch)
			if err != nil {
				return nil, err
			}
		}

		// Paid egress reinforces the pool of the content it came from,
		// whether or not any group was eligible for a payout.
		autoBid := int64(float64(agg.provenSats) * cfg.AutoBidPct)
		if autoBid > 0 {
			settlement.AutoBids = append(settlement.AutoBids, &types.PoolCreditOp{Key: agg.cid, GrossSats: autoBid})
			res.AutoBidSats += autoBid
		}

		for _, g := range agg.groups {
			settlement.Summaries = append(settlement.Summaries, &types.EpochSummary{
				Epoch:             epoch,
				Host:              g.host,
				CID:               agg.cid,
				ReceiptCount:      g.count,
				UniqueClients:     int64(len(g.clients)),
				RewardSats:        g.reward,
				AutoBidSats:       autoBid,
				EgressRoyaltySats: egressRoyalty,
			})
		}
	}

	// Epochs without receipts persist nothing but still advance the
	// settled marker, so the scheduler does not retry them forever.
	if res.Groups > 0 {
		settlement.SummaryEvent, err = s.summaryEvent(epoch, res)
		if err != nil {
			return nil, errors.Wrap(err, "could not sign summary event")
		}
	}

	if err := s.db.ApplySettlement(ctx, settlement); err != nil {
		if errors.Is(err, db.ErrAlreadySettled) {
			return &Result{Epoch: epoch, AlreadySettled: true}, nil
		}
		return nil, err
	}

	if res.Groups == 0 {
		log.WithField("epoch", epoch).Debug("No receipts to settle")
		return res, nil
	}
	log.WithFields(logrus.Fields{
		"epoch":      epoch,
		"groups":     res.Groups,
		"paidSats":   res.PaidSats,
		"autoBid":    res.AutoBidSats,
		"aggFeeSats": res.AggFeeSats,
	}).Info("Settled epoch")
	return res, nil
}

// distribute runs the payout steps for one cid: cap the drain, take the
// aggregator fee off the top, split the rest across the eligible hosts
// by score, charge the egress royalty to the pool, and schedule pin
// drains against the actual drain amount.
func (s *Settler) distribute(
	ctx context.Context,
	cid [32]byte,
	eligible []*group,
	settlement *types.Settlement,
	res *Result,
	epoch primitives.Epoch,
) (int64, error) {
	cfg := params.KarstConfig()

	pool, err := s.db.Pool(ctx, cid)
	if err != nil {
		return 0, err
	}
	var balance int64
	if pool != nil {
		balance = pool.Balance
	}
	// A dry pool pays nothing. Hosts keep their L402 egress revenue and
	// no drain occurs.
	if balance <= 0 {
		return 0, nil
	}

	epochCap := CIDEpochCap(balance)
	aggFee := int64(float64(epochCap) * cfg.AggregatorFeePct)

	var sumScore float64
	scores := make([]float64, len(eligible))
	for i, g := range eligible {
		avail, err := s.availability(ctx, g.host)
		if err != nil {
			return 0, err
		}
		scores[i] = PayoutWeight(g.provenSats, int64(len(g.clients))) * avail
		sumScore += scores[i]
	}

	var paid, eligibleProven int64
	if sumScore > 0 {
		distributable := epochCap - aggFee
		for i, g := range eligible {
			g.reward = int64(float64(distributable) * scores[i] / sumScore)
			paid += g.reward
		}
	} else {
		// Every eligible host scored zero, so there is nothing to
		// aggregate a fee from.
		aggFee = 0
	}
	for _, g := range eligible {
		eligibleProven += g.provenSats
	}
	egressRoyalty := int64(float64(eligibleProven) * cfg.EgressRoyaltyPct)

	gross := paid + aggFee + egressRoyalty
	if gross > 0 {
		settlement.PoolDebits = append(settlement.PoolDebits, &types.PoolDebitOp{Key: cid, Amount: gross})
	}
	actualDrain := gross
	if balance < actualDrain {
		actualDrain = balance
	}

	if actualDrain > 0 {
		pins, err := s.db.PinsByCID(ctx, cid)
		if err != nil {
			return 0, err
		}
		for _, pin := range pins {
			if pin.Status != types.PinActive || epoch > pin.EndEpoch {
				continue
			}
			drain := actualDrain
			if pin.DrainRate < drain {
				drain = pin.DrainRate
			}
			if pin.RemainingBudget < drain {
				drain = pin.RemainingBudget
			}
			if drain <= 0 {
				continue
			}
			settlement.PinDrains = append(settlement.PinDrains, &types.PinDrainOp{ID: pin.ID, Drain: drain})
			res.PinDrainSats += drain
		}
	}

	res.PaidSats += paid
	res.AggFeeSats += aggFee
	res.EgressRoyaltySats += egressRoyalty
	return egressRoyalty, nil
}

// availability returns the host's current availability score, defaulting
// for hosts that never registered.
func (s *Settler) availability(ctx context.Context, host [32]byte) (float64, error) {
	rec, err := s.db.Host(ctx, host)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return params.KarstConfig().DefaultAvailabilityScore, nil
	}
	return rec.AvailabilityScore, nil
}

// summaryEvent composes the operator signed EPOCH_SUMMARY event carrying
// the aggregate totals of the run.
func (s *Settler) summaryEvent(epoch primitives.Epoch, res *Result) (*protocol.Event, error) {
	body, err := protocol.EncodePayload(&protocol.EpochSummaryPayload{
		Epoch:             uint64(epoch),
		Groups:            res.Groups,
		PaidSats:          res.PaidSats,
		AggFeeSats:        res.AggFeeSats,
		AutoBidSats:       res.AutoBidSats,
		EgressRoyaltySats: res.EgressRoyaltySats,
	})
	if err != nil {
		return nil, err
	}
	return protocol.SignEvent(s.operatorKey, protocol.KindEpochSummary, protocol.ZeroRef, body, 0, time.Now().UnixMilli())
}

// groupReceipts buckets receipt digests by (host, cid) and sums the
// proven totals per cid. Aggregates and groups come back sorted so the
// run is deterministic.
func groupReceipts(receipts []*protocol.Receipt) []*cidAggregate {
	byCID := make(map[[32]byte]*cidAggregate)
	groups := make(map[[64]byte]*group)
	for _, rcpt := range receipts {
		cid := rcpt.CID()
		agg, ok := byCID[cid]
		if !ok {
			agg = &cidAggregate{cid: cid}
			byCID[cid] = agg
		}
		agg.provenSats += rcpt.PriceSats

		var gk [64]byte
		copy(gk[:32], rcpt.HostPubkey[:])
		copy(gk[32:], cid[:])
		g, ok := groups[gk]
		if !ok {
			g = &group{host: rcpt.HostPubkey, clients: make(map[[32]byte]struct{})}
			groups[gk] = g
			agg.groups = append(agg.groups, g)
		}
		g.count++
		g.clients[rcpt.ClientPubkey] = struct{}{}
		g.provenSats += rcpt.PriceSats
	}

	aggregates := make([]*cidAggregate, 0, len(byCID))
	for _, agg := range byCID {
		sort.Slice(agg.groups, func(i, j int) bool {
			return bytes.Compare(agg.groups[i].host[:], agg.groups[j].host[:]) < 0
		})
		aggregates = append(aggregates, agg)
	}
	sort.Slice(aggregates, func(i, j int) bool {
		return bytes.Compare(aggregates[i].cid[:], aggregates[j].cid[:]) < 0
	})
	return aggregates
}
