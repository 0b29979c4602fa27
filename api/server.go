/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/items, /api/departments   Lookup lists for forms
  /api/usage/*                   Proportion reports
  /api/allocations               Allocation calculator
  /api/overview, /api/trend      Report views
  /api/issuances                 Draft issuance log
  /api/admin/*                   Cache refresh

SECURITY NOTE:
  No authentication middleware. This runs on a trusted internal network
  for a single back-office user.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/items", h.ListItems)
		r.Get("/departments", h.ListDepartments)

		r.Route("/usage", func(r chi.Router) {
			r.Get("/proportions", h.GetProportions)
		})

		r.Post("/allocations", h.CreateAllocations)

		r.Get("/overview", h.GetOverview)
		r.Get("/trend", h.GetTrend)

		r.Route("/issuances", func(r chi.Router) {
			r.Get("/", h.ListIssuances)
			r.Post("/", h.CreateIssuance)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.RefreshData)
		})
	})

	return r
}
