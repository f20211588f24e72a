// Package protocol defines the signed event envelope, its canonical
// encoding, payload schemas and the proof of work rules of the karst
// wire protocol.
package protocol

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/pkg/errors"
)

// CurrentVersion is the only envelope version this coordinator accepts.
const CurrentVersion = 1

// ZeroRef is the reserved "no reference" value.
var ZeroRef = [32]byte{}

// Event is the parsed form of a signed envelope. From doubles as the
// author's ed25519 public key. The identifier of an event is the SHA-256
// of its canonical encoding without the signature, so identity and
// signature cover exactly the same bytes.
type Event struct {
	Version int64
	Kind    Kind
	From    [32]byte
	Ref     [32]byte
	Body    []byte
	Sats    int64
	TS      int64
	Sig     [64]byte
	Pow     *ProofOfWork
}

// ProofOfWork carries the optional anti spam nonce of a zero sat event.
type ProofOfWork struct {
	Nonce uint64
	Hash  [32]byte
}

// canonicalEnvelope is the subset of the envelope covered by the event id
// and the signature. Field tags follow RFC 8949 sorted order.
type canonicalEnvelope struct {
	V    int64  `cbor:"v"`
	TS   int64  `cbor:"ts"`
	Ref  []byte `cbor:"ref"`
	Body []byte `cbor:"body"`
	From []byte `cbor:"from"`
	Kind uint64 `cbor:"kind"`
	Sats int64  `cbor:"sats"`
}

// CanonicalBytes returns the deterministic encoding of the envelope minus
// the signature.
func (e *Event) CanonicalBytes() ([]byte, error) {
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	return canonical.Marshal(&canonicalEnvelope{
		V:    e.Version,
		TS:   e.TS,
		Ref:  e.Ref[:],
		Body: body,
		From: e.From[:],
		Kind: uint64(e.Kind),
		Sats: e.Sats,
	})
}

// ID computes the event identifier.
func (e *Event) ID() ([32]byte, error) {
	enc, err := e.CanonicalBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(enc), nil
}

// VerifySignature checks the ed25519 signature against the author key.
func (e *Event) VerifySignature() (bool, error) {
	enc, err := e.CanonicalBytes()
	if err != nil {
		return false, err
	}
	return ed25519.Verify(e.From[:], enc, e.Sig[:]), nil
}

// SignEvent builds and signs an envelope with the given key. The public
// half of priv becomes the author field.
func SignEvent(priv ed25519.PrivateKey, kind Kind, ref [32]byte, body []byte, sats, ts int64) (*Event, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("not an ed25519 key")
	}
	ev := &Event{
		Version: CurrentVersion,
		Kind:    kind,
		From:    bytesutil.ToBytes32(pub),
		Ref:     ref,
		Body:    body,
		Sats:    sats,
		TS:      ts,
	}
	enc, err := ev.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	copy(ev.Sig[:], ed25519.Sign(priv, enc))
	return ev, nil
}

// ValidationError describes an envelope rejected before any side effect,
// carrying the stable machine readable code from the error taxonomy.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func failedValidation(code, detail string) *ValidationError {
	return &ValidationError{Code: code, Detail: detail}
}

// Envelope is the JSON wire form of an event. Byte fields are lowercase
// hex strings.
type Envelope struct {
	Version  int64   `json:"v"`
	Kind     int64   `json:"kind"`
	From     string  `json:"from"`
	Ref      string  `json:"ref"`
	Body     string  `json:"body"`
	Sats     int64   `json:"sats"`
	TS       int64   `json:"ts"`
	Sig      string  `json:"sig"`
	PowNonce *uint64 `json:"pow_nonce,omitempty"`
	PowHash  string  `json:"pow_hash,omitempty"`
}

// Parse validates the wire envelope field by field, in the documented
// order, and returns the parsed event. The returned error is always a
// *ValidationError.
func (w *Envelope) Parse() (*Event, *ValidationError) {
	if w.Version != CurrentVersion {
		return nil, failedValidation("unsupported_version", "only version 1 envelopes are accepted")
	}
	if w.Kind < 1 || w.Kind > 255 {
		return nil, failedValidation("invalid_kind", "kind must be an integer in [1,255]")
	}
	from, err := bytesutil.DecodeHex32(w.From)
	if err != nil {
		return nil, failedValidation("invalid_from", "from must be 64 hex characters")
	}
	ref, err := bytesutil.DecodeHex32(w.Ref)
	if err != nil {
		return nil, failedValidation("invalid_ref", "ref must be 64 hex characters")
	}
	maxBody := params.KarstConfig().EventMaxBodyBytes
	if len(w.Body) > 2*maxBody {
		return nil, failedValidation("body_too_large", "body exceeds the protocol limit")
	}
	body, err := hex.DecodeString(w.Body)
	if err != nil {
		return nil, failedValidation("invalid_body", "body must be hex encoded")
	}
	if w.Sats < 0 {
		return nil, failedValidation("invalid_sats", "sats must be non negative")
	}
	if w.TS < 0 {
		return nil, failedValidation("invalid_ts", "ts must be a non negative unix ms timestamp")
	}
	sigRaw, err := hex.DecodeString(w.Sig)
	if err != nil || len(sigRaw) != ed25519.SignatureSize {
		return nil, failedValidation("invalid_signature", "sig must be 128 hex characters")
	}
	ev := &Event{
		Version: w.Version,
		Kind:    Kind(w.Kind),
		From:    from,
		Ref:     ref,
		Body:    body,
		Sats:    w.Sats,
		TS:      w.TS,
	}
	copy(ev.Sig[:], sigRaw)
	if w.PowNonce != nil || w.PowHash != "" {
		if w.PowNonce == nil {
			return nil, failedValidation("invalid_pow", "pow_hash given without pow_nonce")
		}
		powHash, err := bytesutil.DecodeHex32(w.PowHash)
		if err != nil {
			return nil, failedValidation("invalid_pow", "pow_hash must be 64 hex characters")
		}
		ev.Pow = &ProofOfWork{Nonce: *w.PowNonce, Hash: powHash}
	}
	return ev, nil
}

// Wire converts a parsed event back to its JSON form.
func (e *Event) Wire() *Envelope {
	w := &Envelope{
		Version: e.Version,
		Kind:    int64(e.Kind),
		From:    bytesutil.EncodeHex(e.From[:]),
		Ref:     bytesutil.EncodeHex(e.Ref[:]),
		Body:    bytesutil.EncodeHex(e.Body),
		Sats:    e.Sats,
		TS:      e.TS,
		Sig:     bytesutil.EncodeHex(e.Sig[:]),
	}
	if e.Pow != nil {
		nonce := e.Pow.Nonce
		w.PowNonce = &nonce
		w.PowHash = bytesutil.EncodeHex(e.Pow.Hash[:])
	}
	return w
}
