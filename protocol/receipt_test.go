package protocol_test

import (
	"testing"

	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func fastPowConfig(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.KarstConfig().Copy()
	cfg.PowDifficultyBits = 8
	params.OverrideKarstConfig(cfg)
}

func TestReceipt_CIDPrefersAssetRoot(t *testing.T) {
	fileRoot := util.Root32(1)
	assetRoot := util.Root32(2)
	r := &protocol.Receipt{FileRoot: fileRoot}
	assert.Equal(t, fileRoot, r.CID())
	r.AssetRoot = &assetRoot
	assert.Equal(t, assetRoot, r.CID())
}

func TestReceipt_MintTokenVerification(t *testing.T) {
	fastPowConfig(t)
	mintKey := util.TestKey(t, 3)
	otherKey := util.TestKey(t, 4)
	r := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       9,
		HostPubkey:  util.Root32(0x10),
		PaymentHash: util.Root32(0x20),
		FileRoot:    util.Root32(0x30),
		MintKey:     mintKey,
	})

	assert.Equal(t, true, r.VerifyMintToken(util.MintPubkeys(t, mintKey)))
	assert.Equal(t, true, r.VerifyMintToken(util.MintPubkeys(t, otherKey, mintKey)), "any configured key may match")
	assert.Equal(t, false, r.VerifyMintToken(util.MintPubkeys(t, otherKey)))

	// The token binds the price.
	r.PriceSats++
	assert.Equal(t, false, r.VerifyMintToken(util.MintPubkeys(t, mintKey)))
}

func TestReceipt_ClientSignature(t *testing.T) {
	fastPowConfig(t)
	clientKey := util.TestKey(t, 2)
	r := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       3,
		HostPubkey:  util.Root32(0x10),
		PaymentHash: util.Root32(0x21),
		FileRoot:    util.Root32(0x30),
		ClientKey:   clientKey,
	})
	ok, err := r.VerifyClientSig()
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	r.ResponseHash = util.Root32(0xFF)
	ok, err = r.VerifyClientSig()
	require.NoError(t, err)
	assert.Equal(t, false, ok)
}

func TestReceipt_SigningBytesCoverAssetRoot(t *testing.T) {
	fastPowConfig(t)
	r := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       1,
		PaymentHash: util.Root32(0x22),
		FileRoot:    util.Root32(0x30),
	})
	without, err := r.SigningBytes()
	require.NoError(t, err)
	assetRoot := util.Root32(0x31)
	r.AssetRoot = &assetRoot
	with, err := r.SigningBytes()
	require.NoError(t, err)
	assert.DeepNotEqual(t, without, with)
}

func TestReceipt_Pow(t *testing.T) {
	paymentHash := util.Root32(0x23)
	nonce, hash := protocol.SolveReceiptPow(paymentHash, 8)
	r := &protocol.Receipt{PaymentHash: paymentHash, Nonce: nonce, PowHash: hash}
	assert.Equal(t, true, r.VerifyPow(8))

	r.Nonce++
	assert.Equal(t, false, r.VerifyPow(8))
}

func TestReceiptEnvelope_RoundTrip(t *testing.T) {
	fastPowConfig(t)
	assetRoot := util.Root32(0x31)
	r := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       5,
		HostPubkey:  util.Root32(0x10),
		BlockCID:    util.Root32(0x40),
		FileRoot:    util.Root32(0x30),
		AssetRoot:   &assetRoot,
		PaymentHash: util.Root32(0x24),
		PriceSats:   21,
	})
	parsed, verr := r.Wire().Parse()
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	assert.DeepEqual(t, r, parsed)
}

func TestReceiptEnvelope_ParseRejectsBadFields(t *testing.T) {
	fastPowConfig(t)
	r := util.NewReceipt(t, util.ReceiptOpts{Epoch: 1, PaymentHash: util.Root32(0x25), FileRoot: util.Root32(0x30)})

	w := r.Wire()
	w.PaymentHash = "nope"
	_, verr := w.Parse()
	require.NotNil(t, verr)
	assert.Equal(t, "invalid_receipt", verr.Code)

	w = r.Wire()
	w.PriceSats = -4
	_, verr = w.Parse()
	require.NotNil(t, verr)
	assert.Equal(t, "invalid_receipt", verr.Code)

	w = r.Wire()
	w.ClientSig = "aa"
	_, verr = w.Parse()
	require.NotNil(t, verr)
	assert.Equal(t, "invalid_receipt", verr.Code)
}
