package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/identity"
)

// RegisterIdentityRoutes wires the profile and user administration endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
	r.Get("/roles", h.Roles)
	users := r.Group("/users")
	users.Get("/", h.List)
	users.Post("/", h.Create)
	users.Get("/:id", h.Get)
	users.Patch("/:id", h.Update)
}
