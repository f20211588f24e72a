package rpc

import (
	"net/http"

	"github.com/karstnet/karst/coordinator/db/filters"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
	"github.com/karstnet/karst/protocol"
	"go.opencensus.io/trace"
)

// SubmitEvent accepts a signed event envelope and runs the ingest
// pipeline on it.
func (s *Service) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.SubmitEvent")
	defer span.End()

	var envelope protocol.Envelope
	if err := httputil.DecodeJson(r, &envelope); err != nil {
		httputil.HandleError(w, "invalid_body", "request body is not valid JSON", http.StatusUnprocessableEntity)
		return
	}
	res, rej := s.cfg.Ingest.SubmitEvent(ctx, &envelope)
	if rej != nil {
		writeIngestError(w, rej)
		return
	}
	httputil.WriteJson(w, &SubmitEventResponse{
		Ok:          true,
		EventID:     bytesutil.EncodeHex(res.EventID[:]),
		Duplicate:   res.Duplicate,
		PoolCredit:  res.PoolCredit,
		ProtocolFee: res.ProtocolFee,
	})
}

// ListEvents queries the log by ref, kind, author and time, newest
// first.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.ListEvents")
	defer span.End()

	f := filters.NewFilter()
	if ref, set, ok := hex32Query(w, r, "ref"); !ok {
		return
	} else if set {
		f.SetRef(ref)
	}
	if from, set, ok := hex32Query(w, r, "from"); !ok {
		return
	} else if set {
		f.SetAuthor(from)
	}
	if kind, ok := int64Query(w, r, "kind", 0); !ok {
		return
	} else if kind != 0 {
		f.SetKind(protocol.Kind(kind))
	}
	if since, ok := int64Query(w, r, "since", 0); !ok {
		return
	} else if since != 0 {
		f.SetSince(since)
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0)
	if !ok {
		return
	}
	if offset < 0 {
		offset = 0
	}
	f.SetLimit(clampPage(limit)).SetOffset(offset)

	logged, err := s.cfg.DB.Events(ctx, f)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &EventsResponse{Events: make([]*LoggedEventJson, 0, len(logged))}
	for _, ev := range logged {
		resp.Events = append(resp.Events, &LoggedEventJson{
			Seq:      ev.Seq,
			EventID:  bytesutil.EncodeHex(ev.ID[:]),
			Envelope: ev.Event.Wire(),
		})
	}
	httputil.WriteJson(w, resp)
}

// CreatePaymentRequest issues a lightning invoice binding a payment to
// an event hash.
func (s *Service) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.CreatePaymentRequest")
	defer span.End()

	var req PayReqRequest
	if err := httputil.DecodeJson(r, &req); err != nil {
		httputil.HandleError(w, "invalid_body", "request body is not valid JSON", http.StatusUnprocessableEntity)
		return
	}
	eventHash, err := bytesutil.DecodeHex32(req.EventHash)
	if err != nil {
		httputil.HandleError(w, "invalid_event_hash", "event_hash must be 32 bytes of hex", http.StatusUnprocessableEntity)
		return
	}
	payreq, rej := s.cfg.Ingest.CreatePaymentRequest(ctx, eventHash, req.Sats)
	if rej != nil {
		writeIngestError(w, rej)
		return
	}
	httputil.WriteJson(w, payreq)
}

// PaymentStatus reports the settlement state of an issued invoice.
func (s *Service) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.PaymentStatus")
	defer span.End()

	paymentHash, ok := hex32Var(w, r, "payment_hash")
	if !ok {
		return
	}
	state, rej := s.cfg.Ingest.PaymentStatus(ctx, paymentHash)
	if rej != nil {
		writeIngestError(w, rej)
		return
	}
	httputil.WriteJson(w, state)
}
