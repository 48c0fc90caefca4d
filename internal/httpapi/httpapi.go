// Package httpapi serves echolite's operational plane: health, status, and
// Prometheus metrics over HTTP, kept entirely separate from the binary
// protocol's TCP listener. Grounded on the teacher's internal/api.Server
// (gorilla/mux routing, promhttp.Handler, writeJSON helper), narrowed to
// the three endpoints this server needs.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"echolite/internal/health"
	"echolite/internal/metrics"
)

// Server is echolite's HTTP operational plane.
type Server struct {
	httpServer *http.Server
	health     *health.Checker
	metrics    *metrics.Collector
	startTime  time.Time
	dbPath     string
	log        *slog.Logger
}

// New builds a Server bound to addr, not yet listening.
func New(addr string, h *health.Checker, mc *metrics.Collector, dbPath string, log *slog.Logger) *Server {
	s := &Server{health: h, metrics: mc, startTime: time.Now(), dbPath: dbPath, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(mc.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. Start returns no error: a bind
// or serve error from ListenAndServe is logged from the background
// goroutine, mirroring the teacher's fire-and-forget goroutine plus logged
// error.
func (s *Server) Start() {
	s.log.Info("http api listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http api server error", "err", err)
		}
	}()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.health.Snapshot()
	status := http.StatusOK
	if !s.health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":     int(time.Since(s.startTime).Seconds()),
		"go_version":         runtime.Version(),
		"goroutines":         runtime.NumGoroutine(),
		"database":           s.dbPath,
		"active_connections": int(s.metrics.ActiveConnections()),
		"protocol": map[string]int{
			"major": 1,
			"minor": 0,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
