package rpc

import (
	"net/http"
	"time"

	"github.com/karstnet/karst/coordinator/types"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
	"go.opencensus.io/trace"
)

// spotCheckHistory is how many recent probe results the checks endpoint
// returns per host.
const spotCheckHistory = 50

// TriggerChecks runs one synchronous availability pass over all hosts.
func (s *Service) TriggerChecks(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.TriggerChecks")
	defer span.End()

	if err := s.cfg.Checker.RunChecks(ctx); err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, &OkResponse{Ok: true})
}

// HostChecks returns a host's recent spot check results and its current
// availability score.
func (s *Service) HostChecks(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.HostChecks")
	defer span.End()

	pubkey, ok := hex32Var(w, r, "pubkey")
	if !ok {
		return
	}
	host, err := s.cfg.DB.Host(ctx, pubkey)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if host == nil {
		httputil.HandleError(w, "not_found", "no host with that pubkey", http.StatusNotFound)
		return
	}
	checks, err := s.cfg.DB.SpotChecks(ctx, pubkey, spotCheckHistory)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &HostChecksResponse{
		Pubkey: bytesutil.EncodeHex(pubkey[:]),
		Score:  host.AvailabilityScore,
		Status: host.Status.String(),
		Checks: make([]*SpotCheckJson, 0, len(checks)),
	}
	for _, c := range checks {
		resp.Checks = append(resp.Checks, spotCheckJson(c))
	}
	httputil.WriteJson(w, resp)
}

// Directory lists hosts clients can fetch from. Hosts the availability
// monitor deactivated, and hosts leaving or slashed, stay out.
func (s *Service) Directory(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.Directory")
	defer span.End()

	hosts, err := s.cfg.DB.Hosts(ctx)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &DirectoryResponse{Hosts: make([]*HostJson, 0, len(hosts))}
	for _, h := range hosts {
		switch h.Status {
		case types.HostPending, types.HostTrusted, types.HostDegraded:
			resp.Hosts = append(resp.Hosts, hostJson(h))
		}
	}
	httputil.WriteJson(w, resp)
}

// Health reports liveness, the size of the event log, and server time.
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.Health")
	defer span.End()

	count, err := s.cfg.DB.EventCount(ctx)
	if err != nil {
		httputil.HandleError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, &HealthResponse{
		Status:    "ok",
		Events:    count,
		Timestamp: time.Now().UnixMilli(),
	})
}
