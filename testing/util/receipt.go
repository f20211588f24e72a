package util

import (
	"crypto/ed25519"
	"testing"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/protocol/primitives"
)

// ReceiptOpts configures a test receipt.
type ReceiptOpts struct {
	Epoch       primitives.Epoch
	HostPubkey  [32]byte
	BlockCID    [32]byte
	FileRoot    [32]byte
	AssetRoot   *[32]byte
	PaymentHash [32]byte
	PriceSats   int64
	ClientKey   ed25519.PrivateKey // generated from seed 2 if nil
	MintKey     ed25519.PrivateKey // generated from seed 3 if nil
}

// NewReceipt builds a fully valid receipt: mint token, solved proof of
// work at the configured difficulty, and client signature.
func NewReceipt(tb testing.TB, o ReceiptOpts) *protocol.Receipt {
	tb.Helper()
	if o.ClientKey == nil {
		o.ClientKey = TestKey(tb, 2)
	}
	if o.MintKey == nil {
		o.MintKey = TestKey(tb, 3)
	}
	if o.PriceSats == 0 {
		o.PriceSats = 3
	}
	r := &protocol.Receipt{
		Epoch:        o.Epoch,
		HostPubkey:   o.HostPubkey,
		BlockCID:     o.BlockCID,
		FileRoot:     o.FileRoot,
		AssetRoot:    o.AssetRoot,
		ClientPubkey: Pubkey32(tb, o.ClientKey),
		PaymentHash:  o.PaymentHash,
		ResponseHash: Root32(0xEE),
		PriceSats:    o.PriceSats,
	}
	r.ReceiptToken = protocol.MintToken(o.MintKey, r.PaymentHash, r.PriceSats)
	r.Nonce, r.PowHash = protocol.SolveReceiptPow(r.PaymentHash, params.KarstConfig().PowDifficultyBits)
	if err := r.SignAsClient(o.ClientKey); err != nil {
		tb.Fatalf("could not sign receipt: %v", err)
	}
	return r
}

// MintPubkeys returns the public halves of mint keys for configuring
// verification.
func MintPubkeys(tb testing.TB, privs ...ed25519.PrivateKey) []ed25519.PublicKey {
	tb.Helper()
	keys := make([]ed25519.PublicKey, 0, len(privs))
	for _, priv := range privs {
		pub, ok := priv.Public().(ed25519.PublicKey)
		if !ok {
			tb.Fatalf("not an ed25519 key")
		}
		keys = append(keys, pub)
	}
	return keys
}
