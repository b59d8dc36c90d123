package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the API routes. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler, allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/trips/{tripId}/stops/{stopSequence}/next-arrival", h.GetNextArrival)
		r.Get("/trips/{tripId}/schedule", h.GetSchedule)
		r.Get("/trips/{tripId}/service-dates", h.GetServiceDates)
		r.Get("/trips/{tripId}/delays", h.GetDelays)
		r.Post("/realtime", h.PostRealtime)
	})
	return r
}
