// Package web exposes the operational HTTP endpoints of the scheduler
// process: health, metrics and the current rate snapshot.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valutatrade/valutahub/internal/domain"
)

// SnapshotProvider serves the current in-memory rate snapshot.
type SnapshotProvider interface {
	Snapshot() domain.RateSnapshot
}

// Server exposes HTTP endpoints for health checks, prometheus scraping
// and rate inspection.
type Server struct {
	Addr     string
	Rates    SnapshotProvider
	Gatherer prometheus.Gatherer
}

// NewServer creates a new web server instance.
func NewServer(addr string, rates SnapshotProvider, gatherer prometheus.Gatherer) *Server {
	return &Server{Addr: addr, Rates: rates, Gatherer: gatherer}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rates", s.handleRates)
	mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if s.Rates == nil {
		http.Error(w, "rate engine not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Rates.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
