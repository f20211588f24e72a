package rpc

import (
	"net/http"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
	"github.com/karstnet/karst/protocol"
	"go.opencensus.io/trace"
)

// SubmitReceipt accepts a signed egress receipt from a host.
func (s *Service) SubmitReceipt(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.SubmitReceipt")
	defer span.End()

	var envelope protocol.ReceiptEnvelope
	if err := httputil.DecodeJson(r, &envelope); err != nil {
		httputil.HandleError(w, "invalid_receipt", "request body is not valid JSON", http.StatusUnauthorized)
		return
	}
	res, rej := s.cfg.Ingest.SubmitReceipt(ctx, &envelope)
	if rej != nil {
		writeIngestError(w, rej)
		return
	}
	httputil.WriteJson(w, &ReceiptSubmitResponse{
		Ok:          true,
		PaymentHash: bytesutil.EncodeHex(res.PaymentHash[:]),
		CID:         bytesutil.EncodeHex(res.CID[:]),
		Duplicate:   res.Duplicate,
	})
}
