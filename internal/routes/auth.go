package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/auth"
)

// RegisterAuthRoutes wires login, logout and password recovery endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/logout", h.Logout)

	recovery := r.Group("/recovery")
	recovery.Post("/verify", h.VerifyRecovery)
	recovery.Post("/reset", h.ResetPassword)
}

// RegisterSessionRoutes exposes the caller's session. The auth middleware in
// front of these already counts the request as activity.
func RegisterSessionRoutes(protected fiber.Router, h *auth.Handler) {
	protected.Get("/session", h.Session)
	protected.Post("/session/activity", h.Session)
}
