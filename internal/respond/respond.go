// Package respond renders the JSON envelopes shared by every API handler.
package respond

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is the success body.
type Envelope struct {
	Status     string           `json:"status"`
	Message    string           `json:"message,omitempty"`
	Data       any              `json:"data"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// ErrorBody is the failure body.
type ErrorBody struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OK writes a 200 envelope.
func OK(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusOK).JSON(Envelope{Status: statusSuccess, Data: data})
}

// Message writes an envelope with a human readable message.
func Message(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{Status: statusSuccess, Message: message, Data: data})
}

// Page writes a list envelope with its pagination block.
func Page(c *fiber.Ctx, data any, meta pagination.Meta) error {
	return c.Status(http.StatusOK).JSON(Envelope{Status: statusSuccess, Data: data, Pagination: &meta})
}

// Error writes the failure envelope.
func Error(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(ErrorBody{Status: statusError, Kind: kind, Message: message})
}
