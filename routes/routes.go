package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pollenlabs/nectar-gateway/app"
	"github.com/pollenlabs/nectar-gateway/handlers"
	"github.com/pollenlabs/nectar-gateway/models"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))

	// CORS middleware. The referrer strategy means browser clients call
	// this API directly from arbitrary registered domains.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-enter-token", "x-github-id"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Auth-Method", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.TrustClient, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Logger)
	statusHandler := handlers.NewStatusHandler(deps.Access, deps.TrustCache, deps.Admission, deps.Audit.Enabled(), deps.Logger)
	completionHandler := handlers.NewCompletionHandler(deps.Access, deps.Admission, deps.Upstream, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", statusHandler.HandleStatus)

		// Verdict debugging
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.ResolveAuth)
			r.Get("/whoami", authHandler.HandleWhoAmI)
		})

		// Completion proxy. Resolution never rejects here: anonymous
		// callers are admitted through the slowest queue class.
		r.Route("/completions", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.ResolveAuth)
			r.Post("/", completionHandler.HandleCompletion)
		})

		// Operator surface (require admin tier)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.ResolveAuth)
			r.Use(deps.AuthMiddleware.RequireTier(models.TierAdmin))
			r.Get("/stats", statusHandler.HandleAdminStats)
		})
	})

	return r
}
