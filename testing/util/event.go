// Package util defines test fixtures for events, receipts and hosts.
package util

import (
	"crypto/ed25519"
	"testing"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
)

// TestKey returns a deterministic ed25519 private key derived from seed.
func TestKey(tb testing.TB, seed byte) ed25519.PrivateKey {
	tb.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	return ed25519.NewKeyFromSeed(raw)
}

// Pubkey32 returns the 32 byte public key of an ed25519 private key.
func Pubkey32(tb testing.TB, priv ed25519.PrivateKey) [32]byte {
	tb.Helper()
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		tb.Fatalf("not an ed25519 key")
	}
	return bytesutil.ToBytes32(pub)
}

// EventOpts configures a test event. Zero values produce a signed zero
// sat POST with an empty body referencing ZeroRef.
type EventOpts struct {
	Key  ed25519.PrivateKey
	Kind protocol.Kind
	Ref  [32]byte
	Body []byte
	Sats int64
	TS   int64
	Pow  bool
}

// NewSignedEvent builds a valid signed event for tests.
func NewSignedEvent(tb testing.TB, o EventOpts) *protocol.Event {
	tb.Helper()
	if o.Key == nil {
		o.Key = TestKey(tb, 1)
	}
	if o.Kind == 0 {
		o.Kind = protocol.KindPost
	}
	if o.TS == 0 {
		o.TS = 1735689600123
	}
	ev, err := protocol.SignEvent(o.Key, o.Kind, o.Ref, o.Body, o.Sats, o.TS)
	if err != nil {
		tb.Fatalf("could not sign event: %v", err)
	}
	if o.Pow {
		ev.Pow = protocol.SolvePow(ev.From, ev.TS, ev.Kind, ev.Ref, ev.Body, params.KarstConfig().PowDifficultyBits)
	}
	return ev
}

// EventID returns the identifier of an event, failing the test on error.
func EventID(tb testing.TB, ev *protocol.Event) [32]byte {
	tb.Helper()
	id, err := ev.ID()
	if err != nil {
		tb.Fatalf("could not compute event id: %v", err)
	}
	return id
}

// Root32 builds a recognizable 32 byte value for use as refs and roots.
func Root32(b byte) [32]byte {
	var r [32]byte
	for i := range r {
		r[i] = b
	}
	return r
}
