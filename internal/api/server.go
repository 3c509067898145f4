// Package api exposes the small status/health HTTP surface: host
// states, Prometheus metrics, and a liveness probe.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netixx/flexsentry/internal/fleet"
	"github.com/netixx/flexsentry/internal/xlog"
)

// Server is the status/health HTTP surface.
type Server struct {
	mgr        *fleet.Manager
	listenAddr string
	rateLimit  int
	httpServer *http.Server
}

// New creates a Server serving listenAddr, reporting on mgr's state, and
// rate-limiting every endpoint to rateLimitPerMin requests/minute per
// caller.
func New(mgr *fleet.Manager, listenAddr string, rateLimitPerMin int) *Server {
	return &Server{mgr: mgr, listenAddr: listenAddr, rateLimit: rateLimitPerMin}
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled,
// at which point it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := xlog.Component("api")

	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listenAddr).Msg("status API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(rateLimit(s.rateLimit))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleHealthz is an unconditional liveness probe: the process is
// running and able to serve HTTP.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statusResponse is the /status payload: one entry per monitored host.
type statusResponse struct {
	Hosts []hostStatus `json:"hosts"`
}

type hostStatus struct {
	Host  string `json:"host"`
	Total int    `json:"total"`
	Used  int    `json:"used"`
	Users int    `json:"users"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	for _, mon := range s.mgr.Monitors() {
		state := mon.State()
		resp.Hosts = append(resp.Hosts, hostStatus{
			Host:  mon.Host(),
			Total: state.Total(),
			Used:  state.Used(),
			Users: state.UserCount(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		xlog.Component("api").Warn().Err(err).Msg("failed to encode status response")
	}
}
