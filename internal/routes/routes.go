package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/remix/authcore/internal/handlers"
	"github.com/remix/authcore/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	trustedProxies []string,
) {
	// Credential-bearing endpoints get per-IP rate limiting on top of the
	// per-account lockout counters
	rateLimitConfig := middleware.DefaultAuthRateLimit(trustedProxies)
	limited := middleware.RateLimitByIP(rateLimitConfig)

	router.With(limited).Post("/auth/register", authHandler.Register)
	router.With(limited).Post("/auth/login/initiate", authHandler.LoginInitiate)
	router.With(limited).Post("/auth/login/verify", authHandler.LoginVerify)

	// Link endpoints hit from email clients
	router.Get("/auth/verify-email", authHandler.VerifyEmail)
	router.Get("/auth/unlock-account", authHandler.UnlockAccount)

	// Session endpoints are called on every request by relying services, so
	// they stay outside the rate limiter
	router.Post("/sessions/validate", sessionHandler.Validate)
	router.Post("/sessions/logout", sessionHandler.Logout)
}
