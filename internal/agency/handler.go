package agency

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

// Handler exposes agency endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an agency HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	City    string `json:"city"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// List returns every agency.
func (h *Handler) List(c *fiber.Ctx) error {
	agencies, err := h.service.List(c.UserContext(), middleware.PrincipalFrom(c))
	if err != nil {
		return err
	}
	return respond.OK(c, agencies)
}

// Create registers an agency.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	a, err := h.service.Create(c.UserContext(), middleware.PrincipalFrom(c), CreateInput(req))
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusCreated, "Agency created successfully", a)
}
