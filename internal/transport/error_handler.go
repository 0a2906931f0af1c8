package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// ErrorBody is the failure envelope shared with the RPC replies.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ErrorHandler renders every handler error as an ErrorBody. Only *fiber.Error
// messages reach the client; anything else becomes a generic 500.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := internalErrorMessage

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		log := observability.WithContextLogger(logger, c.UserContext()).With(
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
		if code >= fiber.StatusInternalServerError {
			log.Error("request error")
		} else {
			log.Warn("request rejected")
		}

		return c.Status(code).JSON(ErrorBody{
			Success: false,
			Message: message,
			Error:   utils.StatusMessage(code),
		})
	}
}
