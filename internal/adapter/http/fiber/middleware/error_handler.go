package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
)

// ErrorHandler is the app-level catch for errors no handler translated
// itself. Domain errors get their natural status; everything else is a 500
// and worth a log line.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
		case errors.Is(err, domain.ErrStationNotFound),
			errors.Is(err, domain.ErrTransactionNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrConnectorBusy):
			code = fiber.StatusConflict
		case errors.Is(err, domain.ErrStationNotConnected):
			code = fiber.StatusServiceUnavailable
		}

		if code == fiber.StatusInternalServerError {
			log.Error("unhandled request error",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
