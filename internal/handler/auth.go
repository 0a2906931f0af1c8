package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
)

const principalKey = "principal"

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// RequireAuth resolves the bearer token and stores the principal on the request.
func RequireAuth(auth TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, err := auth.Authenticate(c.UserContext(), bearerToken(c))
		if err != nil {
			return toHTTPError(err)
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return ""
	}

	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

func principalFrom(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := c.Locals(principalKey).(domain.Principal)
	if !ok || principal.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: User not authenticated", domain.ErrUnauthorized)
	}
	return principal, nil
}
