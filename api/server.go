/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/uploads/*     Report ingestion and upload management
  /api/leaderboard   Latest ranked scores
  /api/members/*     Member history and suggestions
  /api/heatmap       Member-by-month matrix
  /api/admin/*       Maintenance operations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Upload routes
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", h.Upload)
			r.Get("/", h.ListUploads)
			r.Delete("/{id}", h.DeleteUpload)
		})

		// Score views
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/periods", h.ListPeriods)
		r.Get("/months/{month}", h.MonthDetail)
		r.Get("/heatmap", h.Heatmap)
		r.Get("/chapters", h.ListChapters)
		r.Get("/scores", h.ListScores)
		r.Delete("/scores", h.DeleteScores)

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Get("/{id}/history", h.MemberHistory)
			r.Get("/{id}/suggestions", h.MemberSuggestions)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/cleanup-duplicates", h.CleanupDuplicates)
		})
	})

	return r
}
