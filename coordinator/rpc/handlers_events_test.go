package rpc

import (
	"context"
	"net/http"
	"testing"

	dbtest "github.com/karstnet/karst/coordinator/db/testing"
	"github.com/karstnet/karst/coordinator/ingest"
	"github.com/karstnet/karst/encoding/bytesutil"
	lntest "github.com/karstnet/karst/lightning/testing"
	"github.com/karstnet/karst/protocol"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/karstnet/karst/testing/util"
)

func TestSubmitEvent_FundCreditsPoolOverHTTP(t *testing.T) {
	store := dbtest.SetupDB(t)
	ts := newTestServer(t, store, nil)
	cid := util.Root32(0xA1)

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: cid, Sats: 1000})
	res := submitEvent(t, ts.svc, ev.Wire())
	assert.Equal(t, true, res.Ok)
	assert.Equal(t, false, res.Duplicate)
	assert.Equal(t, int64(850), res.PoolCredit)
	assert.Equal(t, int64(150), res.ProtocolFee)
	id := util.EventID(t, ev)
	assert.Equal(t, bytesutil.EncodeHex(id[:]), res.EventID)

	again := submitEvent(t, ts.svc, ev.Wire())
	assert.Equal(t, true, again.Duplicate)
	assert.Equal(t, res.EventID, again.EventID)

	pool, err := store.Pool(context.Background(), cid)
	require.NoError(t, err)
	assert.Equal(t, int64(850), pool.Balance)
	assert.Equal(t, int64(1000), pool.TotalTipped)
}

func TestSubmitEvent_RejectionTaxonomy(t *testing.T) {
	ts := newTestServer(t, dbtest.SetupDB(t), &ingest.Config{Lightning: lntest.NewBackend()})

	rec := doPostRaw(t, ts.svc, "/event", "{not json")
	requireErrorResponse(t, rec, http.StatusUnprocessableEntity, "invalid_body")

	ev := util.NewSignedEvent(t, util.EventOpts{Body: []byte("tamper target")})
	w := ev.Wire()
	w.TS++ // signature no longer covers the envelope
	rec = doPost(t, ts.svc, "/event", w)
	requireErrorResponse(t, rec, http.StatusUnauthorized, "invalid_signature")

	paid := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: util.Root32(0xA2), Sats: 500})
	rec = doPost(t, ts.svc, "/event", paid.Wire())
	requireErrorResponse(t, rec, http.StatusPaymentRequired, "payment_required")
}

func TestListEvents_FiltersAndPages(t *testing.T) {
	ts := newTestServer(t, dbtest.SetupDB(t), nil)
	refA, refB := util.Root32(0xA3), util.Root32(0xA4)
	author, other := util.TestKey(t, 11), util.TestKey(t, 12)

	first := util.NewSignedEvent(t, util.EventOpts{Key: author, Kind: protocol.KindAnnounce, Ref: refA, TS: 1000})
	second := util.NewSignedEvent(t, util.EventOpts{Key: author, Kind: protocol.KindPost, Ref: refA, TS: 2000, Body: []byte("reply")})
	third := util.NewSignedEvent(t, util.EventOpts{Key: other, Kind: protocol.KindAnnounce, Ref: refB, TS: 3000})
	for _, ev := range []*protocol.Event{first, second, third} {
		submitEvent(t, ts.svc, ev.Wire())
	}

	rec := doGet(t, ts.svc, "/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var all EventsResponse
	decodeBody(t, rec, &all)
	require.Equal(t, 3, len(all.Events))
	assert.Equal(t, int64(3000), all.Events[0].TS)
	assert.Equal(t, int64(2000), all.Events[1].TS)
	assert.Equal(t, int64(1000), all.Events[2].TS)

	rec = doGet(t, ts.svc, "/events?ref="+bytesutil.EncodeHex(refA[:]))
	var byRef EventsResponse
	decodeBody(t, rec, &byRef)
	require.Equal(t, 2, len(byRef.Events))
	assert.Equal(t, int64(2000), byRef.Events[0].TS)

	rec = doGet(t, ts.svc, "/events?ref="+bytesutil.EncodeHex(refA[:])+"&kind=3")
	var byKind EventsResponse
	decodeBody(t, rec, &byKind)
	require.Equal(t, 1, len(byKind.Events))
	assert.Equal(t, int64(3), byKind.Events[0].Kind)

	otherPub := util.Pubkey32(t, other)
	rec = doGet(t, ts.svc, "/events?from="+bytesutil.EncodeHex(otherPub[:]))
	var byAuthor EventsResponse
	decodeBody(t, rec, &byAuthor)
	require.Equal(t, 1, len(byAuthor.Events))
	assert.Equal(t, int64(3000), byAuthor.Events[0].TS)

	rec = doGet(t, ts.svc, "/events?since=1500")
	var since EventsResponse
	decodeBody(t, rec, &since)
	require.Equal(t, 2, len(since.Events))

	rec = doGet(t, ts.svc, "/events?limit=1&offset=1")
	var page EventsResponse
	decodeBody(t, rec, &page)
	require.Equal(t, 1, len(page.Events))
	assert.Equal(t, int64(2000), page.Events[0].TS)
}

func TestListEvents_MalformedParams(t *testing.T) {
	ts := newTestServer(t, dbtest.SetupDB(t), nil)

	rec := doGet(t, ts.svc, "/events?ref=zz")
	requireErrorResponse(t, rec, http.StatusBadRequest, "invalid_ref")

	rec = doGet(t, ts.svc, "/events?from=1234")
	requireErrorResponse(t, rec, http.StatusBadRequest, "invalid_from")

	rec = doGet(t, ts.svc, "/events?limit=ten")
	requireErrorResponse(t, rec, http.StatusBadRequest, "invalid_limit")

	rec = doGet(t, ts.svc, "/events?kind=funding")
	requireErrorResponse(t, rec, http.StatusBadRequest, "invalid_kind")
}

func TestPaymentRequest_InvoiceLifecycle(t *testing.T) {
	store := dbtest.SetupDB(t)
	ln := lntest.NewBackend()
	ts := newTestServer(t, store, &ingest.Config{Lightning: ln})

	ev := util.NewSignedEvent(t, util.EventOpts{Kind: protocol.KindFund, Ref: util.Root32(0xA5), Sats: 700})
	id := util.EventID(t, ev)

	rec := doPost(t, ts.svc, "/payreq", &PayReqRequest{Sats: 700, EventHash: bytesutil.EncodeHex(id[:])})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pr ingest.PaymentRequest
	decodeBody(t, rec, &pr)
	require.Equal(t, false, pr.DevMode)
	require.NotEqual(t, "", pr.PaymentHash)
	require.NotEqual(t, "", pr.Invoice)

	rec = doGet(t, ts.svc, "/payreq/"+pr.PaymentHash)
	require.Equal(t, http.StatusOK, rec.Code)
	var state ingest.PaymentState
	decodeBody(t, rec, &state)
	assert.Equal(t, false, state.Settled)
	assert.Equal(t, int64(700), state.Sats)

	ph, err := bytesutil.DecodeHex32(pr.PaymentHash)
	require.NoError(t, err)
	ln.Settle(ph, 700)

	rec = doGet(t, ts.svc, "/payreq/"+pr.PaymentHash)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &state)
	assert.Equal(t, true, state.Settled)

	res := submitEvent(t, ts.svc, ev.Wire())
	assert.Equal(t, false, res.Duplicate)
	assert.Equal(t, int64(595), res.PoolCredit)
	assert.Equal(t, int64(105), res.ProtocolFee)
}

func TestPaymentRequest_MalformedAndUnknown(t *testing.T) {
	ts := newTestServer(t, dbtest.SetupDB(t), &ingest.Config{Lightning: lntest.NewBackend()})

	rec := doPost(t, ts.svc, "/payreq", &PayReqRequest{Sats: 100, EventHash: "nothex"})
	requireErrorResponse(t, rec, http.StatusUnprocessableEntity, "invalid_event_hash")

	rec = doPostRaw(t, ts.svc, "/payreq", "][")
	requireErrorResponse(t, rec, http.StatusUnprocessableEntity, "invalid_body")

	unknown := util.Root32(0xA6)
	rec = doGet(t, ts.svc, "/payreq/"+bytesutil.EncodeHex(unknown[:]))
	requireErrorResponse(t, rec, http.StatusNotFound, "not_found")

	rec = doGet(t, ts.svc, "/payreq/zz")
	requireErrorResponse(t, rec, http.StatusBadRequest, "invalid_payment_hash")
}
