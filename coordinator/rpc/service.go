// Package rpc serves the coordinator's HTTP JSON API: event and receipt
// submission, payment requests, feeds, threads, pins, settlement, the
// host directory, and citation graph queries.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	coreepoch "github.com/karstnet/karst/coordinator/core/epoch"
	"github.com/karstnet/karst/coordinator/db"
	"github.com/karstnet/karst/coordinator/ingest"
	"github.com/karstnet/karst/coordinator/materializer"
	"github.com/karstnet/karst/protocol/primitives"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rpc")

// Settler closes past epochs on demand.
type Settler interface {
	Settle(ctx context.Context, epoch primitives.Epoch) (*coreepoch.Result, error)
}

// Checker runs one full availability pass.
type Checker interface {
	RunChecks(ctx context.Context) error
}

// Config options for the HTTP service.
type Config struct {
	Host           string
	Port           string
	AllowedOrigins []string
	DB             db.Database
	Ingest         *ingest.Service
	Materializer   *materializer.Service
	Settler        Settler
	Checker        Checker
	GenesisMS      int64
}

// Service is the coordinator's HTTP server.
type Service struct {
	cfg          *Config
	ctx          context.Context
	cancel       context.CancelFunc
	server       *http.Server
	router       *mux.Router
	startFailure error
}

// NewService wires the router and returns an unstarted HTTP service.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: s.corsMiddleware(s.router),
	}
	return s
}

// registerRoutes binds every handler. Literal paths register before
// their templated siblings so /graph/top is not captured by
// /graph/{ref}.
func (s *Service) registerRoutes() {
	r := s.router
	r.Use(s.logRequests)
	r.HandleFunc("/event", s.SubmitEvent).Methods(http.MethodPost)
	r.HandleFunc("/payreq", s.CreatePaymentRequest).Methods(http.MethodPost)
	r.HandleFunc("/payreq/{payment_hash}", s.PaymentStatus).Methods(http.MethodGet)
	r.HandleFunc("/events", s.ListEvents).Methods(http.MethodGet)
	r.HandleFunc("/feed/funded", s.FundedFeed).Methods(http.MethodGet)
	r.HandleFunc("/feed/recent", s.RecentFeed).Methods(http.MethodGet)
	r.HandleFunc("/thread/{event_id}", s.Thread).Methods(http.MethodGet)
	r.HandleFunc("/receipt/submit", s.SubmitReceipt).Methods(http.MethodPost)
	r.HandleFunc("/epoch/settle", s.SettleEpoch).Methods(http.MethodPost)
	r.HandleFunc("/epoch/summary/{epoch}", s.EpochSummary).Methods(http.MethodGet)
	r.HandleFunc("/pin", s.CreatePin).Methods(http.MethodPost)
	r.HandleFunc("/pin/{id}", s.GetPin).Methods(http.MethodGet)
	r.HandleFunc("/pin/{id}/cancel", s.CancelPin).Methods(http.MethodPost)
	r.HandleFunc("/hosts/check", s.TriggerChecks).Methods(http.MethodPost)
	r.HandleFunc("/hosts/{pubkey}/checks", s.HostChecks).Methods(http.MethodGet)
	r.HandleFunc("/directory", s.Directory).Methods(http.MethodGet)
	r.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	r.HandleFunc("/pool/{ref}", s.GetPool).Methods(http.MethodGet)
	r.HandleFunc("/graph/top", s.TopRefs).Methods(http.MethodGet)
	r.HandleFunc("/graph/{ref}", s.GetGraph).Methods(http.MethodGet)
}

// Router exposes the handler tree, mainly to tests.
func (s *Service) Router() *mux.Router {
	return s.router
}

// Start serving in the background.
func (s *Service) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to start HTTP server")
			s.startFailure = err
		}
	}()
}

// Stop the server with a graceful shutdown.
func (s *Service) Stop() error {
	if s.server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(s.ctx, 2*time.Second)
		defer shutdownCancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("Existing connections terminated")
			} else {
				log.WithError(err).Error("Failed to gracefully shut down server")
			}
		}
	}
	s.cancel()
	return nil
}

// Status returns an error if the listener failed to come up.
func (s *Service) Status() error {
	if s.startFailure != nil {
		return s.startFailure
	}
	return nil
}

func (s *Service) corsMiddleware(h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowCredentials: true,
		MaxAge:           600,
		AllowedHeaders:   []string{"*"},
	})
	return c.Handler(h)
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		latency := time.Since(start)
		httpRequestsTotal.WithLabelValues(r.Method, route, fmt.Sprintf("%d", rec.status)).Inc()
		httpRequestLatency.WithLabelValues(route).Observe(float64(latency.Milliseconds()))
		log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  rec.status,
			"latency": latency,
		}).Debug("Handled request")
	})
}
