package rpc

import (
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
)

// Wire shapes of the JSON API. Hashes, keys and refs travel as plain
// hex strings, the same encoding the event envelope uses.

type SubmitEventResponse struct {
	Ok          bool   `json:"ok"`
	EventID     string `json:"event_id"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	PoolCredit  int64  `json:"pool_credit,omitempty"`
	ProtocolFee int64  `json:"protocol_fee,omitempty"`
}

type PayReqRequest struct {
	Sats      int64  `json:"sats"`
	EventHash string `json:"event_hash"`
}

// LoggedEventJson is a stored event with its log position and id, the
// envelope fields flattened alongside.
type LoggedEventJson struct {
	Seq     uint64 `json:"seq"`
	EventID string `json:"event_id"`
	*protocol.Envelope
}

type EventsResponse struct {
	Events []*LoggedEventJson `json:"events"`
}

type ReceiptSubmitResponse struct {
	Ok          bool   `json:"ok"`
	PaymentHash string `json:"payment_hash"`
	CID         string `json:"cid"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

type SettleEpochRequest struct {
	Epoch uint64 `json:"epoch"`
}

type SummaryRowJson struct {
	Epoch             uint64 `json:"epoch"`
	Host              string `json:"host"`
	CID               string `json:"cid"`
	ReceiptCount      int64  `json:"receipt_count"`
	UniqueClients     int64  `json:"unique_clients"`
	RewardSats        int64  `json:"reward_sats"`
	AutoBidSats       int64  `json:"auto_bid_sats"`
	EgressRoyaltySats int64  `json:"egress_royalty_sats"`
}

type EpochSummaryResponse struct {
	Epoch     uint64            `json:"epoch"`
	Settled   bool              `json:"settled"`
	Summaries []*SummaryRowJson `json:"summaries"`
}

type CreatePinRequest struct {
	CID            string `json:"cid"`
	MinCopies      uint64 `json:"min_copies"`
	DurationEpochs uint64 `json:"duration_epochs"`
	BudgetSats     int64  `json:"budget_sats"`
	OwnerPubkey    string `json:"owner_pubkey,omitempty"`
}

type PinJson struct {
	ID              string `json:"id"`
	CID             string `json:"cid"`
	Owner           string `json:"owner,omitempty"`
	MinCopies       uint64 `json:"min_copies"`
	DurationEpochs  uint64 `json:"duration_epochs"`
	BudgetSats      int64  `json:"budget_sats"`
	RemainingBudget int64  `json:"remaining_budget"`
	DrainRate       int64  `json:"drain_rate"`
	Status          string `json:"status"`
	CreatedEpoch    uint64 `json:"created_epoch"`
	EndEpoch        uint64 `json:"end_epoch"`
}

type CreatePinResponse struct {
	Pin         *PinJson `json:"pin"`
	PoolCredit  int64    `json:"pool_credit"`
	ProtocolFee int64    `json:"protocol_fee"`
}

type CancelPinResponse struct {
	Pin       *PinJson `json:"pin"`
	Refund    int64    `json:"refund"`
	CancelFee int64    `json:"cancel_fee"`
}

type HostJson struct {
	Pubkey            string  `json:"pubkey"`
	Endpoint          string  `json:"endpoint,omitempty"`
	Status            string  `json:"status"`
	AvailabilityScore float64 `json:"availability_score"`
	MinRequestSats    int64   `json:"min_request_sats"`
	SatsPerGB         int64   `json:"sats_per_gb"`
	RegisteredEpoch   uint64  `json:"registered_epoch"`
}

type DirectoryResponse struct {
	Hosts []*HostJson `json:"hosts"`
}

type SpotCheckJson struct {
	CID       string `json:"cid"`
	Epoch     uint64 `json:"epoch"`
	Passed    bool   `json:"passed"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt int64  `json:"checked_at"`
}

type HostChecksResponse struct {
	Pubkey string           `json:"pubkey"`
	Score  float64          `json:"score"`
	Status string           `json:"status"`
	Checks []*SpotCheckJson `json:"checks"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Events    uint64 `json:"events"`
	Timestamp int64  `json:"timestamp"`
}

type PoolJson struct {
	Ref             string `json:"ref"`
	Balance         int64  `json:"balance"`
	TotalTipped     int64  `json:"total_tipped"`
	LastPayoutEpoch uint64 `json:"last_payout_epoch"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

func pinJson(pin *types.PinContract) *PinJson {
	out := &PinJson{
		ID:              pin.ID,
		CID:             bytesutil.EncodeHex(pin.CID[:]),
		MinCopies:       pin.MinCopies,
		DurationEpochs:  pin.DurationEpochs,
		BudgetSats:      pin.BudgetSats,
		RemainingBudget: pin.RemainingBudget,
		DrainRate:       pin.DrainRate,
		Status:          pin.Status.String(),
		CreatedEpoch:    uint64(pin.CreatedEpoch),
		EndEpoch:        uint64(pin.EndEpoch),
	}
	if !bytesutil.IsZero32(pin.Owner) {
		out.Owner = bytesutil.EncodeHex(pin.Owner[:])
	}
	return out
}

func hostJson(h *types.HostRecord) *HostJson {
	return &HostJson{
		Pubkey:            bytesutil.EncodeHex(h.Pubkey[:]),
		Endpoint:          h.Endpoint,
		Status:            h.Status.String(),
		AvailabilityScore: h.AvailabilityScore,
		MinRequestSats:    h.MinRequestSats,
		SatsPerGB:         h.SatsPerGB,
		RegisteredEpoch:   uint64(h.RegisteredEpoch),
	}
}

func summaryRowJson(sum *types.EpochSummary) *SummaryRowJson {
	return &SummaryRowJson{
		Epoch:             uint64(sum.Epoch),
		Host:              bytesutil.EncodeHex(sum.Host[:]),
		CID:               bytesutil.EncodeHex(sum.CID[:]),
		ReceiptCount:      sum.ReceiptCount,
		UniqueClients:     sum.UniqueClients,
		RewardSats:        sum.RewardSats,
		AutoBidSats:       sum.AutoBidSats,
		EgressRoyaltySats: sum.EgressRoyaltySats,
	}
}

func spotCheckJson(c *types.SpotCheckResult) *SpotCheckJson {
	return &SpotCheckJson{
		CID:       bytesutil.EncodeHex(c.CID[:]),
		Epoch:     uint64(c.Epoch),
		Passed:    c.Passed,
		LatencyMS: c.LatencyMS,
		Error:     c.Error,
		CheckedAt: c.CheckedAt,
	}
}
