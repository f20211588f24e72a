package rpc

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/karstnet/karst/time/epochs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

// CreatePin opens a pin contract: the budget is credited to the
// content's pool through the usual credit rule and drains back out per
// epoch while enough hosts keep the content available.
func (s *Service) CreatePin(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.CreatePin")
	defer span.End()
	cfg := params.KarstConfig()

	var req CreatePinRequest
	if err := httputil.DecodeJson(r, &req); err != nil {
		httputil.HandleError(w, "invalid_body", "request body is not valid JSON", http.StatusUnprocessableEntity)
		return
	}
	cid, err := bytesutil.DecodeHex32(req.CID)
	if err != nil {
		httputil.HandleError(w, "invalid_cid", "cid must be 32 bytes of hex", http.StatusUnprocessableEntity)
		return
	}
	if req.MinCopies < 1 || req.MinCopies > cfg.PinMaxCopies {
		detail := fmt.Sprintf("min_copies must be between 1 and %d", cfg.PinMaxCopies)
		httputil.HandleError(w, "invalid_min_copies", detail, http.StatusUnprocessableEntity)
		return
	}
	if req.DurationEpochs < 1 {
		httputil.HandleError(w, "invalid_duration", "duration_epochs must be at least 1", http.StatusUnprocessableEntity)
		return
	}
	if req.BudgetSats < cfg.PinMinBudgetSats {
		detail := fmt.Sprintf("budget_sats must be at least %d", cfg.PinMinBudgetSats)
		httputil.HandleError(w, "invalid_budget", detail, http.StatusUnprocessableEntity)
		return
	}
	var owner [32]byte
	if req.OwnerPubkey != "" {
		owner, err = bytesutil.DecodeHex32(req.OwnerPubkey)
		if err != nil {
			httputil.HandleError(w, "invalid_owner_pubkey", "owner_pubkey must be 32 bytes of hex", http.StatusUnprocessableEntity)
			return
		}
	}

	pinID, err := uuid.NewRandom()
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	current := epochs.CurrentEpoch(s.cfg.GenesisMS)
	pin := &types.PinContract{
		ID:              pinID.String(),
		CID:             cid,
		Owner:           owner,
		MinCopies:       req.MinCopies,
		DurationEpochs:  req.DurationEpochs,
		BudgetSats:      req.BudgetSats,
		RemainingBudget: req.BudgetSats,
		DrainRate:       req.BudgetSats / int64(req.DurationEpochs),
		Status:          types.PinActive,
		CreatedEpoch:    current,
		EndEpoch:        current + primitives.Epoch(req.DurationEpochs),
	}
	res, err := s.cfg.DB.ApplyPinCreate(ctx, pin)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	log.WithFields(logrus.Fields{
		"pin":    pin.ID,
		"cid":    fmt.Sprintf("%#x", cid[:8]),
		"budget": req.BudgetSats,
	}).Info("Pin contract created")
	httputil.WriteJson(w, &CreatePinResponse{
		Pin:         pinJson(pin),
		PoolCredit:  res.PoolCredit,
		ProtocolFee: res.ProtocolFee,
	})
}

// GetPin returns one pin contract.
func (s *Service) GetPin(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.GetPin")
	defer span.End()

	pin, err := s.cfg.DB.PinContract(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if pin == nil {
		httputil.HandleError(w, "not_found", "no pin contract with that id", http.StatusNotFound)
		return
	}
	httputil.WriteJson(w, pinJson(pin))
}

// CancelPin cancels an active pin. The unspent budget minus the
// cancellation fee refunds out of the pool.
func (s *Service) CancelPin(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.CancelPin")
	defer span.End()

	res, err := s.cfg.DB.CancelPinContract(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, db.ErrPinNotActive) {
			httputil.HandleError(w, "pin_not_active", "pin contract is exhausted or already cancelled", http.StatusConflict)
			return
		}
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if res == nil {
		httputil.HandleError(w, "not_found", "no pin contract with that id", http.StatusNotFound)
		return
	}
	httputil.WriteJson(w, &CancelPinResponse{
		Pin:       pinJson(res.Pin),
		Refund:    res.Refund,
		CancelFee: res.CancelFee,
	})
}
