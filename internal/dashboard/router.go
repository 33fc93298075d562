// Package dashboard serves the funnel analysis as a JSON API for the
// dashboard front end, plus the exported report as a download.
package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the dashboard routes. limit, when non-nil, bounds
// concurrent API requests.
func NewRouter(h *Handler, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Get("/healthz", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Get("/analysis", h.analysis)
		r.Get("/segments/{key}", h.segment)
		r.Get("/curve", h.curve)
		r.Get("/report", h.report)
	})
	return r
}
