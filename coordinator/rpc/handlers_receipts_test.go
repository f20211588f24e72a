package rpc

import (
	"net/http"
	"testing"

	dbtest "github.com/karstnet/karst/coordinator/db/testing"
	"github.com/karstnet/karst/coordinator/ingest"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func TestSubmitReceipt_AcceptsAndDeduplicates(t *testing.T) {
	fastPowConfig(t)
	ts := newTestServer(t, dbtest.SetupDB(t), &ingest.Config{
		MintPubkeys: util.MintPubkeys(t, util.TestKey(t, 3)),
	})

	fileRoot := util.Root32(0xB0)
	rcpt := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       4,
		HostPubkey:  util.Pubkey32(t, util.TestKey(t, 7)),
		BlockCID:    util.Root32(0xB1),
		FileRoot:    fileRoot,
		PaymentHash: util.Root32(0xB2),
		PriceSats:   40,
	})

	rec := doPost(t, ts.svc, "/receipt/submit", rcpt.Wire())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ReceiptSubmitResponse
	decodeBody(t, rec, &res)
	assert.Equal(t, true, res.Ok)
	assert.Equal(t, false, res.Duplicate)
	assert.Equal(t, bytesutil.EncodeHex(rcpt.PaymentHash[:]), res.PaymentHash)
	assert.Equal(t, bytesutil.EncodeHex(fileRoot[:]), res.CID)

	rec = doPost(t, ts.svc, "/receipt/submit", rcpt.Wire())
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	assert.Equal(t, true, res.Duplicate)
}

func TestSubmitReceipt_NoMintKeysConfigured(t *testing.T) {
	fastPowConfig(t)
	ts := newTestServer(t, dbtest.SetupDB(t), nil)

	rcpt := util.NewReceipt(t, util.ReceiptOpts{
		Epoch:       4,
		HostPubkey:  util.Pubkey32(t, util.TestKey(t, 7)),
		FileRoot:    util.Root32(0xB3),
		PaymentHash: util.Root32(0xB4),
	})
	rec := doPost(t, ts.svc, "/receipt/submit", rcpt.Wire())
	requireErrorResponse(t, rec, http.StatusServiceUnavailable, "no_mint_pubkeys_configured")
}

func TestSubmitReceipt_MalformedBody(t *testing.T) {
	ts := newTestServer(t, dbtest.SetupDB(t), &ingest.Config{
		MintPubkeys: util.MintPubkeys(t, util.TestKey(t, 3)),
	})

	rec := doPostRaw(t, ts.svc, "/receipt/submit", "plainly not json")
	requireErrorResponse(t, rec, http.StatusUnauthorized, "invalid_receipt")
}
