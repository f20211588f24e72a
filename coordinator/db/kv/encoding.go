package kv

import (
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
)

// storedEvent is the durable row form of an envelope, signature and proof
// of work included.
type storedEvent struct {
	Version  int64   `cbor:"v"`
	TS       int64   `cbor:"ts"`
	Ref      []byte  `cbor:"ref"`
	Sig      []byte  `cbor:"sig"`
	Body     []byte  `cbor:"body"`
	From     []byte  `cbor:"from"`
	Kind     uint64  `cbor:"kind"`
	Sats     int64   `cbor:"sats"`
	PowHash  []byte  `cbor:"pow_hash,omitempty"`
	PowNonce *uint64 `cbor:"pow_nonce,omitempty"`
}

func marshalEvent(ev *protocol.Event) ([]byte, error) {
	row := &storedEvent{
		Version: ev.Version,
		TS:      ev.TS,
		Ref:     ev.Ref[:],
		Sig:     ev.Sig[:],
		Body:    ev.Body,
		From:    ev.From[:],
		Kind:    uint64(ev.Kind),
		Sats:    ev.Sats,
	}
	if ev.Pow != nil {
		nonce := ev.Pow.Nonce
		row.PowNonce = &nonce
		row.PowHash = ev.Pow.Hash[:]
	}
	return canonical.Marshal(row)
}

func unmarshalEvent(enc []byte) (*protocol.Event, error) {
	row := &storedEvent{}
	if err := canonical.Unmarshal(enc, row); err != nil {
		return nil, errors.Wrap(err, "could not decode event row")
	}
	ev := &protocol.Event{
		Version: row.Version,
		Kind:    protocol.Kind(row.Kind),
		From:    bytesutil.ToBytes32(row.From),
		Ref:     bytesutil.ToBytes32(row.Ref),
		Body:    row.Body,
		Sats:    row.Sats,
		TS:      row.TS,
	}
	copy(ev.Sig[:], row.Sig)
	if row.PowNonce != nil {
		ev.Pow = &protocol.ProofOfWork{
			Nonce: *row.PowNonce,
			Hash:  bytesutil.ToBytes32(row.PowHash),
		}
	}
	return ev, nil
}

// storedReceipt is the durable row form of a receipt, client signature
// included.
type storedReceipt struct {
	Epoch        uint64 `cbor:"epoch"`
	Nonce        uint64 `cbor:"nonce"`
	PowHash      []byte `cbor:"pow_hash"`
	BlockCID     []byte `cbor:"block_cid"`
	FileRoot     []byte `cbor:"file_root"`
	AssetRoot    []byte `cbor:"asset_root,omitempty"`
	ClientSig    []byte `cbor:"client_sig"`
	PriceSats    int64  `cbor:"price_sats"`
	HostPubkey   []byte `cbor:"host_pubkey"`
	PaymentHash  []byte `cbor:"payment_hash"`
	ClientPubkey []byte `cbor:"client_pubkey"`
	ReceiptToken []byte `cbor:"receipt_token"`
	ResponseHash []byte `cbor:"response_hash"`
}

func marshalReceipt(r *protocol.Receipt) ([]byte, error) {
	row := &storedReceipt{
		Epoch:        uint64(r.Epoch),
		Nonce:        r.Nonce,
		PowHash:      r.PowHash[:],
		BlockCID:     r.BlockCID[:],
		FileRoot:     r.FileRoot[:],
		ClientSig:    r.ClientSig[:],
		PriceSats:    r.PriceSats,
		HostPubkey:   r.HostPubkey[:],
		PaymentHash:  r.PaymentHash[:],
		ClientPubkey: r.ClientPubkey[:],
		ReceiptToken: r.ReceiptToken[:],
		ResponseHash: r.ResponseHash[:],
	}
	if r.AssetRoot != nil {
		row.AssetRoot = r.AssetRoot[:]
	}
	return canonical.Marshal(row)
}

func unmarshalReceipt(enc []byte) (*protocol.Receipt, error) {
	row := &storedReceipt{}
	if err := canonical.Unmarshal(enc, row); err != nil {
		return nil, errors.Wrap(err, "could not decode receipt row")
	}
	r := &protocol.Receipt{
		Epoch:        primitives.Epoch(row.Epoch),
		HostPubkey:   bytesutil.ToBytes32(row.HostPubkey),
		BlockCID:     bytesutil.ToBytes32(row.BlockCID),
		FileRoot:     bytesutil.ToBytes32(row.FileRoot),
		ClientPubkey: bytesutil.ToBytes32(row.ClientPubkey),
		PaymentHash:  bytesutil.ToBytes32(row.PaymentHash),
		ResponseHash: bytesutil.ToBytes32(row.ResponseHash),
		PriceSats:    row.PriceSats,
		Nonce:        row.Nonce,
		PowHash:      bytesutil.ToBytes32(row.PowHash),
	}
	if len(row.AssetRoot) == 32 {
		assetRoot := bytesutil.ToBytes32(row.AssetRoot)
		r.AssetRoot = &assetRoot
	}
	copy(r.ReceiptToken[:], row.ReceiptToken)
	copy(r.ClientSig[:], row.ClientSig)
	return r, nil
}

// compositeKey concatenates fixed width key parts.
func compositeKey(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}
