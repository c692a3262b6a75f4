/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/ai/*        Strategy invocations and plan apply
  /api/planner/*   Blackouts and week freezing
  /api/events/*    Manual event operations
  /metrics         Prometheus scrape endpoint
  /healthz         Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured. The
// metrics handler is optional; nil disables the /metrics endpoint.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/ai", func(r chi.Router) {
			r.Post("/pack_week", h.PackWeek)
			r.Post("/catch_up", h.CatchUp)
			r.Post("/suggest_plan", h.SuggestPlan)
			r.Post("/plans/{id}/apply", h.ApplyPlan)
		})

		r.Route("/planner", func(r chi.Router) {
			r.Post("/blackouts", h.CreateBlackout)
			r.Delete("/blackouts/{id}", h.DeleteBlackout)
			r.Post("/freeze_week", h.FreezeWeek)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/{id}/reschedule", h.RescheduleEvent)
		})
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Get("/healthz", h.Health)

	return r
}

// MetricsHandler returns the default Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
