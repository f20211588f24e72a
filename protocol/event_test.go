package protocol_test

import (
	"strings"
	"testing"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func TestSignEvent_RoundTrip(t *testing.T) {
	key := util.TestKey(t, 7)
	ev, err := protocol.SignEvent(key, protocol.KindFund, util.Root32(0xAA), []byte{1, 2}, 1000, 1735689600123)
	require.NoError(t, err)

	ok, err := ev.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	// Any mutation of a signed field invalidates the signature.
	ev.Sats = 999
	ok, err = ev.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, false, ok)
}

func TestEventID_ExcludesSignature(t *testing.T) {
	key := util.TestKey(t, 7)
	a, err := protocol.SignEvent(key, protocol.KindPost, protocol.ZeroRef, []byte("hi"), 0, 42)
	require.NoError(t, err)
	b, err := protocol.SignEvent(key, protocol.KindPost, protocol.ZeroRef, []byte("hi"), 0, 42)
	require.NoError(t, err)
	b.Sig = [64]byte{}

	idA, err := a.ID()
	require.NoError(t, err)
	idB, err := b.ID()
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestEventID_DependsOnEveryField(t *testing.T) {
	key := util.TestKey(t, 7)
	base := func() *protocol.Event {
		ev, err := protocol.SignEvent(key, protocol.KindPost, util.Root32(1), []byte("x"), 5, 42)
		require.NoError(t, err)
		return ev
	}
	ref := base()
	refID, err := ref.ID()
	require.NoError(t, err)

	mutations := map[string]func(*protocol.Event){
		"kind": func(e *protocol.Event) { e.Kind = protocol.KindList },
		"ref":  func(e *protocol.Event) { e.Ref = util.Root32(2) },
		"body": func(e *protocol.Event) { e.Body = []byte("y") },
		"sats": func(e *protocol.Event) { e.Sats = 6 },
		"ts":   func(e *protocol.Event) { e.TS = 43 },
		"from": func(e *protocol.Event) { e.From = util.Root32(9) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := base()
			mutate(ev)
			id, err := ev.ID()
			require.NoError(t, err)
			assert.NotEqual(t, refID, id)
		})
	}
}

func validWire(t *testing.T) *protocol.Envelope {
	ev := util.NewSignedEvent(t, util.EventOpts{Sats: 0})
	return ev.Wire()
}

func TestEnvelopeParse_ValidationOrder(t *testing.T) {
	params.SetupTestConfigCleanup(t)

	tests := []struct {
		name     string
		mutate   func(*protocol.Envelope)
		wantCode string
	}{
		{"bad version", func(w *protocol.Envelope) { w.Version = 2 }, "unsupported_version"},
		{"zero kind", func(w *protocol.Envelope) { w.Kind = 0 }, "invalid_kind"},
		{"kind overflow", func(w *protocol.Envelope) { w.Kind = 300 }, "invalid_kind"},
		{"short from", func(w *protocol.Envelope) { w.From = "abcd" }, "invalid_from"},
		{"short ref", func(w *protocol.Envelope) { w.Ref = "ff" }, "invalid_ref"},
		{"huge body", func(w *protocol.Envelope) {
			w.Body = strings.Repeat("00", params.KarstConfig().EventMaxBodyBytes+1)
		}, "body_too_large"},
		{"non hex body", func(w *protocol.Envelope) { w.Body = "zz" }, "invalid_body"},
		{"negative sats", func(w *protocol.Envelope) { w.Sats = -1 }, "invalid_sats"},
		{"negative ts", func(w *protocol.Envelope) { w.TS = -5 }, "invalid_ts"},
		{"short sig", func(w *protocol.Envelope) { w.Sig = "abcd" }, "invalid_signature"},
		{"orphan pow hash", func(w *protocol.Envelope) { w.PowHash = strings.Repeat("00", 32) }, "invalid_pow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWire(t)
			tt.mutate(w)
			_, verr := w.Parse()
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantCode, verr.Code)
		})
	}
}

func TestEnvelopeParse_WireRoundTrip(t *testing.T) {
	ev := util.NewSignedEvent(t, util.EventOpts{
		Kind: protocol.KindAnnounce,
		Ref:  util.Root32(0xCD),
		Body: []byte{0xDE, 0xAD},
		Sats: 250,
	})
	parsed, verr := ev.Wire().Parse()
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	assert.DeepEqual(t, ev, parsed)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "FUND", protocol.KindFund.String())
	assert.Equal(t, "EPOCH_SUMMARY", protocol.KindEpochSummary.String())
	assert.Equal(t, "KIND_0xfe", protocol.Kind(0xFE).String())
}

func TestZeroRefIsAllZeroes(t *testing.T) {
	assert.Equal(t, true, bytesutil.IsZero32(protocol.ZeroRef))
}
