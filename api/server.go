package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gregtusar/dexmaker/pkg/maker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatusSource is the part of the market maker the API reads.
type StatusSource interface {
	Snapshot() maker.Snapshot
}

type Server struct {
	source   StatusSource
	hub      *Hub
	gatherer prometheus.Gatherer
	auth     *Authenticator
	logger   *logrus.Logger
	addr     string
	srv      *http.Server
}

// NewServer serves the market maker's status on addr. A nil auth leaves
// every route open.
func NewServer(source StatusSource, hub *Hub, gatherer prometheus.Gatherer, auth *Authenticator, logger *logrus.Logger, addr string) *Server {
	return &Server{
		source:   source,
		hub:      hub,
		gatherer: gatherer,
		auth:     auth,
		logger:   logger,
		addr:     addr,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/api/status", s.protect(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/offers", s.protect(http.HandlerFunc(s.handleOffers)))
	mux.Handle("/api/stream", s.protect(http.HandlerFunc(s.hub.ServeWS)))
	mux.Handle("/metrics", s.protect(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	return mux
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) protect(next http.Handler) http.Handler {
	if s.auth == nil {
		return next
	}
	return s.auth.Middleware(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.source.Snapshot())
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.source.Snapshot()
	lines := make([]string, 0, len(snap.Offers))
	for _, o := range snap.Offers {
		lines = append(lines, o.Describe(snap.Pair))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pair":   snap.Pair.String(),
		"offers": snap.Offers,
		"lines":  lines,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
