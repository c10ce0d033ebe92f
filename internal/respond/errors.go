package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

// ErrorHandler renders every error returned by a handler as the failure
// envelope. Framework errors keep their status; errors outside the taxonomy
// are logged and reduced to an opaque 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return Error(c, fe.Code, string(kindForStatus(fe.Code)), fe.Message)
		}
		kind := apperr.KindOf(err)
		if kind == apperr.KindPersistence {
			requestID, _ := c.Locals(fiber.HeaderXRequestID).(string)
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "request_id", requestID, "error", err)
		}
		return Error(c, apperr.HTTPStatus(kind), string(kind), apperr.PublicMessage(err))
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apperr.KindUnauthenticated
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusTooManyRequests:
		return apperr.KindRateLimited
	}
	if status >= http.StatusInternalServerError {
		return apperr.KindPersistence
	}
	return apperr.KindValidation
}
