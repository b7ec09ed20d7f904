package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NgigiN/walletsync/internal/logger"
)

type healthServer struct {
	srv *http.Server
}

func newHealthServer(addr string, b *Bot) *healthServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", b.handleHealth)
	r.Get("/status", b.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	return &healthServer{srv: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (h *healthServer) run() {
	if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("health server stopped", "error", err)
	}
}

func (h *healthServer) shutdown(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		logger.L.Warn("failed to shut down health server", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("failed to write response", "error", err)
	}
}

func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := b.connected()
	status, code := "healthy", http.StatusOK
	if !connected {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":            status,
		"uptime":            time.Since(b.startTime).String(),
		"discord_connected": connected,
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

func (b *Bot) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.app.Status())
}
