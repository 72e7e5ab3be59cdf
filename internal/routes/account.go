package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mockbank/mockbank/internal/account"
)

// RegisterAccountRoutes wires self-service registration.
func RegisterAccountRoutes(public fiber.Router, h *account.Handler) {
	public.Post("/accounts", h.Register)
}

// RegisterProfileRoutes wires the profile of the authenticated account.
func RegisterProfileRoutes(protected fiber.Router, h *account.Handler) {
	protected.Get("/me", h.Me)
	protected.Patch("/me", h.UpdateMe)
	protected.Delete("/me", h.DeleteMe)
}
