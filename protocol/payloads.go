package protocol

import (
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/pkg/errors"
)

// Payload bodies of recognized kinds are canonical CBOR maps. Decoding is
// tolerant by design: a malformed body never rejects an otherwise valid
// event, the materialized views simply skip it.

// AnnouncePayload describes published content (kind ANNOUNCE). Ref of the
// carrying event is the asset root.
type AnnouncePayload struct {
	Title        string   `cbor:"title,omitempty" json:"title,omitempty"`
	Description  string   `cbor:"description,omitempty" json:"description,omitempty"`
	Tags         []string `cbor:"tags,omitempty" json:"tags,omitempty"`
	Mime         string   `cbor:"mime,omitempty" json:"mime,omitempty"`
	Size         int64    `cbor:"size,omitempty" json:"size,omitempty"`
	Access       string   `cbor:"access,omitempty" json:"access,omitempty"`
	AuthorPubkey []byte   `cbor:"author_pubkey,omitempty" json:"author_pubkey,omitempty"`
	RevshareBPS  int64    `cbor:"revshare_bps,omitempty" json:"revshare_bps,omitempty"`
}

// PostPayload is a text note (kind POST). Ref links the parent event for
// replies, or an asset root for top level commentary.
type PostPayload struct {
	Text string `cbor:"text" json:"text"`
}

// HostPricing advertises the two price components of a host.
type HostPricing struct {
	MinRequestSats int64 `cbor:"min_request_sats" json:"min_request_sats"`
	SatsPerGB      int64 `cbor:"sats_per_gb" json:"sats_per_gb"`
}

// HostPayload registers or updates a host (kind HOST).
type HostPayload struct {
	Endpoint string      `cbor:"endpoint" json:"endpoint"`
	Pricing  HostPricing `cbor:"pricing" json:"pricing"`
}

// ListPayload is a curated set of asset roots (kind LIST). Every item is
// treated as a citation edge.
type ListPayload struct {
	Title       string   `cbor:"title,omitempty" json:"title,omitempty"`
	Description string   `cbor:"description,omitempty" json:"description,omitempty"`
	Items       [][]byte `cbor:"items" json:"items"`
}

// PinPolicyPayload asks the network to keep min copies of the referenced
// asset for a number of epochs (kind PIN_POLICY).
type PinPolicyPayload struct {
	MinCopies      uint64 `cbor:"min_copies" json:"min_copies"`
	DurationEpochs uint64 `cbor:"duration_epochs" json:"duration_epochs"`
}

// ReceiptSubmitPayload is the body of coordinator authored
// RECEIPT_SUBMIT events.
type ReceiptSubmitPayload struct {
	PaymentHash []byte `cbor:"payment_hash" json:"payment_hash"`
	HostPubkey  []byte `cbor:"host_pubkey" json:"host_pubkey"`
	Epoch       uint64 `cbor:"epoch" json:"epoch"`
	PriceSats   int64  `cbor:"price_sats" json:"price_sats"`
}

// EpochSummaryPayload is the body of coordinator authored EPOCH_SUMMARY
// events, carrying the aggregate settlement totals.
type EpochSummaryPayload struct {
	Epoch             uint64 `cbor:"epoch" json:"epoch"`
	Groups            int64  `cbor:"groups" json:"groups"`
	PaidSats          int64  `cbor:"paid_sats" json:"paid_sats"`
	AggFeeSats        int64  `cbor:"agg_fee_sats" json:"agg_fee_sats"`
	AutoBidSats       int64  `cbor:"auto_bid_sats" json:"auto_bid_sats"`
	EgressRoyaltySats int64  `cbor:"egress_royalty_sats" json:"egress_royalty_sats"`
}

// DecodeAnnouncePayload parses an ANNOUNCE body.
func DecodeAnnouncePayload(body []byte) (*AnnouncePayload, error) {
	p := &AnnouncePayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	if p.RevshareBPS < 0 || p.RevshareBPS > 10000 {
		return nil, errors.New("revshare_bps out of range")
	}
	return p, nil
}

// DecodePostPayload parses a POST body.
func DecodePostPayload(body []byte) (*PostPayload, error) {
	p := &PostPayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeHostPayload parses a HOST body. Endpoint and non negative pricing
// are required for the registry side effect.
func DecodeHostPayload(body []byte) (*HostPayload, error) {
	p := &HostPayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	if p.Endpoint == "" {
		return nil, errors.New("endpoint required")
	}
	if p.Pricing.MinRequestSats < 0 || p.Pricing.SatsPerGB < 0 {
		return nil, errors.New("negative pricing")
	}
	return p, nil
}

// DecodeListPayload parses a LIST body, dropping items that are not 32
// byte roots.
func DecodeListPayload(body []byte) (*ListPayload, error) {
	p := &ListPayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	items := p.Items[:0]
	for _, item := range p.Items {
		if len(item) == 32 {
			items = append(items, item)
		}
	}
	p.Items = items
	return p, nil
}

// DecodeReceiptSubmitPayload parses the body of a coordinator authored
// RECEIPT_SUBMIT event.
func DecodeReceiptSubmitPayload(body []byte) (*ReceiptSubmitPayload, error) {
	p := &ReceiptSubmitPayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePinPolicyPayload parses a PIN_POLICY body and enforces the copy
// and duration bounds.
func DecodePinPolicyPayload(body []byte) (*PinPolicyPayload, error) {
	p := &PinPolicyPayload{}
	if err := canonical.Unmarshal(body, p); err != nil {
		return nil, err
	}
	if p.MinCopies < 1 || p.MinCopies > params.KarstConfig().PinMaxCopies {
		return nil, errors.Errorf("min_copies must be in [1,%d]", params.KarstConfig().PinMaxCopies)
	}
	if p.DurationEpochs < 1 {
		return nil, errors.New("duration_epochs must be at least 1")
	}
	return p, nil
}

// EncodePayload writes any payload struct to canonical CBOR, used when
// composing events.
func EncodePayload(p interface{}) ([]byte, error) {
	return canonical.Marshal(p)
}
