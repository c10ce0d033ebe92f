package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/auth"
)

// RegisterAuthRoutes wires authentication endpoints. Logout needs the
// caller's identity, so it sits behind jwt.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, jwt fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", jwt, h.Logout)
}
