package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
)

const principalKey = "principal"

// PrincipalResolver turns a bearer token into an authenticated principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, accessToken string) (authz.Principal, error)
}

// JWTAuth validates bearer access tokens and stores the resolved principal
// on the request context.
func JWTAuth(resolver PrincipalResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return apperr.New(apperr.KindUnauthenticated, "missing bearer token")
		}
		token := strings.TrimSpace(header[len("Bearer "):])
		principal, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return err
		}
		c.Locals(principalKey, &principal)
		return c.Next()
	}
}

// PrincipalFrom returns the principal stored by JWTAuth, or nil.
func PrincipalFrom(c *fiber.Ctx) *authz.Principal {
	p, _ := c.Locals(principalKey).(*authz.Principal)
	return p
}
