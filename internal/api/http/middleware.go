package httpapi

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/wind"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

// RequestContext tags each request with an id and stores a logger carrying
// it in the request's user context.
func RequestContext(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)

		lg := base.With("request_id", id, "path", c.Path())
		c.SetUserContext(logging.WithContext(c.UserContext(), lg))
		return c.Next()
	}
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, wind.ErrValidation), errors.Is(err, wind.ErrDataRange):
		return fiber.StatusBadRequest
	case errors.Is(err, wind.ErrDegenerateGeometry):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, wind.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, wind.ErrResourceAccess):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	if code >= fiber.StatusInternalServerError {
		logging.FromContext(c.UserContext()).Error("request failed", "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
