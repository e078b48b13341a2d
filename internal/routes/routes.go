package routes

import (
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	throttleConfig middleware.ThrottleConfig,
	throttleRecorder middleware.ThrottleRecorder,
	ipConfig *pkghttp.IPConfig,
) {
	// Login carries the ledger-integrated throttle; the reset surface
	// gets a plain per-IP limiter.
	loginThrottle := middleware.LoginThrottle(throttleConfig, throttleRecorder, ipConfig)
	resetLimit := middleware.RateLimitByIP(10)

	router.With(loginThrottle).Post("/auth/login", authHandler.Login)
	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/refresh", authHandler.RefreshToken)

	router.With(resetLimit).Post("/auth/password/forgot", authHandler.ForgotPassword)
	router.With(resetLimit).Post("/auth/password/reset/validate", authHandler.ValidateResetToken)
	router.With(resetLimit).Post("/auth/password/reset", authHandler.ResetPassword)
}
