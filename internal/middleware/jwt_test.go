package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/logging"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

type stubResolver map[string]authz.Principal

func (s stubResolver) Resolve(_ context.Context, token string) (authz.Principal, error) {
	p, ok := s[token]
	if !ok {
		return authz.Principal{}, apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
	}
	return p, nil
}

func TestJWTAuth(t *testing.T) {
	resolver := stubResolver{"good": {ID: "u1", Role: authz.RoleCentralCash}}
	app := fiber.New(fiber.Config{ErrorHandler: respond.ErrorHandler(logging.Discard())})
	app.Use(SecurityHeaders())
	app.Get("/me", JWTAuth(resolver), func(c *fiber.Ctx) error {
		return c.SendString(PrincipalFrom(c).ID)
	})

	cases := []struct {
		header string
		status int
	}{
		{"", fiber.StatusUnauthorized},
		{"Token good", fiber.StatusUnauthorized},
		{"Bearer bad", fiber.StatusUnauthorized},
		{"Bearer good", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%q: expected %d got %d", tc.header, tc.status, resp.StatusCode)
		}
		if resp.Header.Get("X-Frame-Options") != "DENY" {
			t.Fatalf("expected security headers on every response")
		}
	}
}
