package rpc

import (
	"net/http"

	"github.com/karstnet/karst/coordinator/materializer"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// FundedFeed lists pools ranked by balance with announce metadata.
func (s *Service) FundedFeed(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.FundedFeed")
	defer span.End()

	minBalance, ok := int64Query(w, r, "min_balance", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	entries, err := s.cfg.Materializer.FundedFeed(ctx, minBalance, limit)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, map[string][]*materializer.FundedEntry{"entries": entries})
}

// RecentFeed pages announce events, optionally filtered by tag.
func (s *Service) RecentFeed(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.RecentFeed")
	defer span.End()

	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0)
	if !ok {
		return
	}
	entries, err := s.cfg.Materializer.RecentFeed(ctx, limit, offset, r.URL.Query().Get("tag"))
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, map[string][]*materializer.Announcement{"entries": entries})
}

// Thread returns the reply tree rooted at an event.
func (s *Service) Thread(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.Thread")
	defer span.End()

	rootID, ok := hex32Var(w, r, "event_id")
	if !ok {
		return
	}
	tree, err := s.cfg.Materializer.Thread(ctx, rootID)
	if err != nil {
		if errors.Is(err, materializer.ErrNotFound) {
			httputil.HandleError(w, "not_found", "no event with that id", http.StatusNotFound)
			return
		}
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, tree)
}

// GetPool returns one bounty pool.
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.GetPool")
	defer span.End()

	ref, ok := hex32Var(w, r, "ref")
	if !ok {
		return
	}
	pool, err := s.cfg.DB.Pool(ctx, ref)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if pool == nil {
		httputil.HandleError(w, "not_found", "no pool for that ref", http.StatusNotFound)
		return
	}
	httputil.WriteJson(w, &PoolJson{
		Ref:             bytesutil.EncodeHex(pool.Key[:]),
		Balance:         pool.Balance,
		TotalTipped:     pool.TotalTipped,
		LastPayoutEpoch: uint64(pool.LastPayoutEpoch),
	})
}

// GetGraph returns the citation edges touching a ref.
func (s *Service) GetGraph(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.GetGraph")
	defer span.End()

	ref, ok := hex32Var(w, r, "ref")
	if !ok {
		return
	}
	view, err := s.cfg.Materializer.Graph(ctx, ref)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, view)
}

// TopRefs ranks the citation graph by PageRank.
func (s *Service) TopRefs(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.TopRefs")
	defer span.End()

	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	entries, err := s.cfg.Materializer.TopRefs(ctx, limit)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, map[string][]*materializer.RankedEntry{"entries": entries})
}
