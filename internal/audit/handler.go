package audit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

// Handler exposes the audit log query.
type Handler struct {
	service *Service
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns a page of audit entries, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := Filter{
		UserID:    c.Query("userId"),
		RequestID: c.Query("requestId"),
		Action:    c.Query("action"),
	}
	var err error
	if filter.From, err = queryTime(c, "dateFrom"); err != nil {
		return err
	}
	if filter.To, err = queryTime(c, "dateTo"); err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.service.List(c.UserContext(), middleware.PrincipalFrom(c), filter, pagination.Request{Page: page, Limit: limit})
	if err != nil {
		return err
	}
	return respond.Page(c, res.Entries, res.Pagination)
}

func queryTime(c *fiber.Ctx, field string) (*time.Time, error) {
	raw := c.Query(field)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation(field, field+" must be a date")
}
