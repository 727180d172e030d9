// Package httptransport is the thin HTTP layer over the synchronizer and
// resolver. It owns transport concerns only; domain logic stays in the
// services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skyreg/internal/platform/middleware"
)

// NewRouter wires all public endpoints behind the standard middleware stack.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/registry/status", h.handleStatus)
		api.Post("/registry/sync", h.handleSync)
		api.Get("/resolve", h.handleResolve)
	})
	return r
}
