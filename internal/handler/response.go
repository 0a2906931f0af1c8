package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// envelope is the success body of every gateway route.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

type paginationMeta struct {
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Page        int   `json:"page"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{Success: true, Message: message, Data: data})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTarget):
		return fiber.NewError(fiber.StatusBadRequest, publicMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, publicMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, publicMessage(err))
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, publicMessage(err))
	case errors.Is(err, domain.ErrServiceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, publicMessage(err))
	default:
		return err
	}
}

var sentinels = []error{
	domain.ErrValidation,
	domain.ErrInvalidTarget,
	domain.ErrUnauthorized,
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrServiceUnavailable,
}

// publicMessage drops the leading sentinel text, so "not found: User not found"
// reaches the client as "User not found".
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range sentinels {
		if trimmed, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return trimmed
		}
	}
	return msg
}
