package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/lifecycle"
)

// RegisterRequestRoutes wires the fund request lifecycle. Mutating routes go
// through idempotency when it is configured.
func RegisterRequestRoutes(r fiber.Router, h *lifecycle.Handler, idempotency fiber.Handler) {
	group := r.Group("/requests")
	group.Get("/", h.List)
	group.Get("/summary", h.Summary)
	group.Get("/:id", h.Get)

	mutate := func(handler fiber.Handler) []fiber.Handler {
		if idempotency == nil {
			return []fiber.Handler{handler}
		}
		return []fiber.Handler{idempotency, handler}
	}
	group.Post("/", mutate(h.Create)...)
	group.Patch("/:id/validate", mutate(h.Validate)...)
	group.Patch("/:id/reject", mutate(h.Reject)...)
	group.Patch("/:id/assign-team", mutate(h.AssignTeam)...)
	group.Patch("/:id/dispatch", mutate(h.Dispatch)...)
	group.Patch("/:id/receive", mutate(h.Receive)...)
}

// RegisterAgencyRoutes wires the agency directory.
func RegisterAgencyRoutes(r fiber.Router, h *agency.Handler) {
	group := r.Group("/agencies")
	group.Get("/", h.List)
	group.Post("/", h.Create)
}

// RegisterAuditRoutes wires the administrator audit query.
func RegisterAuditRoutes(r fiber.Router, h *audit.Handler) {
	r.Get("/audit-logs", h.List)
}
