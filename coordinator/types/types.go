// Package types defines the materialized rows the coordinator derives
// from the event log, and the write descriptors applied to them in single
// database transactions.
package types

import (
	"time"

	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
)

// HostStatus is the lifecycle state of a storage host. UNBONDING and
// SLASHED are terminal for the availability monitor.
type HostStatus uint8

// Host lifecycle states.
const (
	HostPending HostStatus = iota
	HostTrusted
	HostDegraded
	HostInactive
	HostUnbonding
	HostSlashed
)

var hostStatusNames = map[HostStatus]string{
	HostPending:   "PENDING",
	HostTrusted:   "TRUSTED",
	HostDegraded:  "DEGRADED",
	HostInactive:  "INACTIVE",
	HostUnbonding: "UNBONDING",
	HostSlashed:   "SLASHED",
}

func (s HostStatus) String() string {
	if name, ok := hostStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the availability monitor may still move the
// host to another status.
func (s HostStatus) Terminal() bool {
	return s == HostUnbonding || s == HostSlashed
}

// LoggedEvent is an event as stored: the envelope plus its position in
// the append only log and its identifier.
type LoggedEvent struct {
	Seq   uint64
	ID    [32]byte
	Event *protocol.Event
}

// BountyPool accumulates sats toward availability rewards for one
// content identifier. Pools are never deleted and balances never go
// negative.
type BountyPool struct {
	Key             [32]byte         `cbor:"key"`
	Balance         int64            `cbor:"balance"`
	TotalTipped     int64            `cbor:"total_tipped"`
	LastPayoutEpoch primitives.Epoch `cbor:"last_payout_epoch"`
}

// HostRecord is the registry row for a storage host. The row is created
// by the first HOST event and never deleted, only its status moves.
type HostRecord struct {
	Pubkey            [32]byte          `cbor:"pubkey"`
	Endpoint          string            `cbor:"endpoint,omitempty"`
	Stake             int64             `cbor:"stake"`
	Status            HostStatus        `cbor:"status"`
	MinRequestSats    int64             `cbor:"min_request_sats"`
	SatsPerGB         int64             `cbor:"sats_per_gb"`
	AvailabilityScore float64           `cbor:"availability_score"`
	RegisteredEpoch   primitives.Epoch  `cbor:"registered_epoch"`
	UnbondEpoch       *primitives.Epoch `cbor:"unbond_epoch,omitempty"`
}

// ServeRecord marks that a host has proven it serves a content
// identifier. Rows are unique per (host, cid) pair.
type ServeRecord struct {
	Host            [32]byte         `cbor:"host"`
	CID             [32]byte         `cbor:"cid"`
	RegisteredEpoch primitives.Epoch `cbor:"registered_epoch"`
}

// EpochSummary is the frozen settlement outcome for one (host, cid)
// group in one epoch.
type EpochSummary struct {
	Epoch             primitives.Epoch `cbor:"epoch"`
	Host              [32]byte         `cbor:"host"`
	CID               [32]byte         `cbor:"cid"`
	ReceiptCount      int64            `cbor:"receipt_count"`
	UniqueClients     int64            `cbor:"unique_clients"`
	RewardSats        int64            `cbor:"reward_sats"`
	AutoBidSats       int64            `cbor:"auto_bid_sats"`
	EgressRoyaltySats int64            `cbor:"egress_royalty_sats"`
}

// PinStatus is the lifecycle state of a pin contract.
type PinStatus uint8

// Pin contract states.
const (
	PinActive PinStatus = iota
	PinExhausted
	PinCancelled
)

var pinStatusNames = map[PinStatus]string{
	PinActive:    "ACTIVE",
	PinExhausted: "EXHAUSTED",
	PinCancelled: "CANCELLED",
}

func (s PinStatus) String() string {
	if name, ok := pinStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// PinContract keeps a replication promise funded: the budget drains into
// the content's pool per epoch until exhausted, cancelled or expired.
type PinContract struct {
	ID              string           `cbor:"id"`
	CID             [32]byte         `cbor:"cid"`
	Owner           [32]byte         `cbor:"owner"`
	MinCopies       uint64           `cbor:"min_copies"`
	DurationEpochs  uint64           `cbor:"duration_epochs"`
	BudgetSats      int64            `cbor:"budget_sats"`
	RemainingBudget int64            `cbor:"remaining_budget"`
	DrainRate       int64            `cbor:"drain_rate"`
	Status          PinStatus        `cbor:"status"`
	CreatedEpoch    primitives.Epoch `cbor:"created_epoch"`
	EndEpoch        primitives.Epoch `cbor:"end_epoch"`
}

// CitationEdge is one funding conducting link of the citation graph.
// SourceNode is the ref of the citing event, or the event id itself for
// events with a zero ref.
type CitationEdge struct {
	SourceEvent [32]byte      `cbor:"source_event"`
	SourceNode  [32]byte      `cbor:"source_node"`
	TargetRef   [32]byte      `cbor:"target_ref"`
	EdgeSats    int64         `cbor:"edge_sats"`
	Kind        protocol.Kind `cbor:"kind"`
}

// SpotCheckResult records one availability probe of a host.
type SpotCheckResult struct {
	Host      [32]byte         `cbor:"host"`
	CID       [32]byte         `cbor:"cid"`
	Epoch     primitives.Epoch `cbor:"epoch"`
	Passed    bool             `cbor:"passed"`
	LatencyMS int64            `cbor:"latency_ms"`
	Error     string           `cbor:"error,omitempty"`
	CheckedAt int64            `cbor:"checked_at"`
}

// PendingPayment binds an unsettled invoice to the event it will admit.
// Held in memory only.
type PendingPayment struct {
	EventHash   [32]byte
	PaymentHash [32]byte
	Bolt11      string
	Sats        int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// PoolCreditOp asks the store to credit a pool with gross sats. The
// founder royalty split is computed inside the transaction against the
// cumulative protocol volume at that instant.
type PoolCreditOp struct {
	Key       [32]byte
	GrossSats int64
}

// PoolDebitOp asks the store to drain a pool. The amount is clamped at
// the pool balance, never below zero.
type PoolDebitOp struct {
	Key    [32]byte
	Amount int64
}

// HostUpsertOp is the registry side effect of a valid HOST event.
type HostUpsertOp struct {
	Pubkey         [32]byte
	Endpoint       string
	MinRequestSats int64
	SatsPerGB      int64
	Epoch          primitives.Epoch
}

// PinDrainOp reduces a pin's remaining budget during settlement.
type PinDrainOp struct {
	ID    string
	Drain int64
}

// EventApplication bundles an event append with its side effects so the
// store can apply everything in one transaction.
type EventApplication struct {
	Event      *protocol.Event
	ID         [32]byte
	PoolCredit *PoolCreditOp
	HostUpsert *HostUpsertOp
	Edges      []*CitationEdge
}

// ApplyResult reports what an event application did.
type ApplyResult struct {
	Seq         uint64
	Duplicate   bool
	PoolCredit  int64
	ProtocolFee int64
}

// Settlement bundles every write of one epoch settlement. Either all of
// it lands or none of it does.
type Settlement struct {
	Epoch        primitives.Epoch
	Summaries    []*EpochSummary
	PoolDebits   []*PoolDebitOp
	AutoBids     []*PoolCreditOp
	PinDrains    []*PinDrainOp
	SummaryEvent *protocol.Event
}

// PinCreateResult reports the royalty split applied to a pin budget.
type PinCreateResult struct {
	ProtocolFee int64
	PoolCredit  int64
}

// PinCancelResult reports the refund math of a pin cancellation.
type PinCancelResult struct {
	Pin       *PinContract
	Refund    int64
	CancelFee int64
}
