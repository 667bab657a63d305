package routes

import (
	"log/slog"

	"github.com/BradenHooton/libgate/internal/auth"
	"github.com/BradenHooton/libgate/internal/handlers"
	"github.com/BradenHooton/libgate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Dependencies are the handlers and guards the API routes are built from
type Dependencies struct {
	AuthHandler  *handlers.AuthHandler
	Health       handlers.HealthChecker
	TokenManager *auth.TokenManager
	Revocations  auth.TokenRevocationChecker
	RateLimit    middleware.RateLimitConfig
	Logger       *slog.Logger
}

// RegisterRoutes registers all application routes on router. The caller
// decides the mount point (cmd/api uses /api).
func RegisterRoutes(router chi.Router, deps Dependencies) {
	limited := middleware.RateLimitByIP(deps.RateLimit)
	h := deps.AuthHandler

	router.Get("/health", handlers.Health(deps.Health))

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/login", h.Login)
		r.Post("/verify-2fa", h.VerifyTwoFactor)
		r.Post("/register", h.Register)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenManager, deps.Revocations, deps.Logger))
		r.Get("/me", h.Me)
		r.Post("/logout", h.Logout)
		r.Post("/enable-2fa", h.EnableTwoFactor)
		r.Post("/disable-2fa", h.DisableTwoFactor)
	})
}
