package rpc

import (
	"fmt"
	"net/http"

	"github.com/karstnet/karst/network/httputil"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/time/epochs"
	"go.opencensus.io/trace"
)

// SettleEpoch settles a strictly past epoch on demand and returns the
// engine's result. Settling an epoch at or behind the marker is an
// idempotent no-op.
func (s *Service) SettleEpoch(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.SettleEpoch")
	defer span.End()

	var req SettleEpochRequest
	if err := httputil.DecodeJson(r, &req); err != nil {
		httputil.HandleError(w, "invalid_body", "request body is not valid JSON", http.StatusUnprocessableEntity)
		return
	}
	epoch := primitives.Epoch(req.Epoch)
	current := epochs.CurrentEpoch(s.cfg.GenesisMS)
	if epoch >= current {
		detail := fmt.Sprintf("epoch %d has not closed yet, current epoch is %d", epoch, current)
		httputil.HandleError(w, "epoch_out_of_range", detail, http.StatusUnprocessableEntity)
		return
	}
	res, err := s.cfg.Settler.Settle(ctx, epoch)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, res)
}

// EpochSummary returns the frozen settlement rows of an epoch.
func (s *Service) EpochSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.EpochSummary")
	defer span.End()

	epoch, ok := uintVar(w, r, "epoch")
	if !ok {
		return
	}
	latest, settledAny, err := s.cfg.DB.LatestSettledEpoch(ctx)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	summaries, err := s.cfg.DB.EpochSummaries(ctx, primitives.Epoch(epoch))
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &EpochSummaryResponse{
		Epoch:     epoch,
		Settled:   settledAny && primitives.Epoch(epoch) <= latest,
		Summaries: make([]*SummaryRowJson, 0, len(summaries)),
	}
	for _, sum := range summaries {
		resp.Summaries = append(resp.Summaries, summaryRowJson(sum))
	}
	httputil.WriteJson(w, resp)
}
