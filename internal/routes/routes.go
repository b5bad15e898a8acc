package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/stagehub/pinguard/internal/auth"
	"github.com/stagehub/pinguard/internal/handlers"
	"github.com/stagehub/pinguard/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	securityHandler *handlers.SecurityHandler,
	verifier *auth.ServiceTokenVerifier,
) {
	rateLimitConfig := middleware.DefaultSecurityRateLimit()

	// Public security endpoints, called by the login flows
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/security/check", securityHandler.CheckStatus)
		r.Post("/security/attempt", securityHandler.RecordAttempt)
	})

	// Administrative endpoints - valid admin service token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(verifier))
		r.Post("/security/unlock", securityHandler.Unlock)
		r.Get("/security/attempts", securityHandler.ListAttempts)
	})
}
