package agency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/logging"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

var admin = &authz.Principal{ID: "admin-1", Name: "Admin", Role: authz.RoleAdministrator}

func TestCreateAndList(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	a, err := svc.Create(ctx, admin, CreateInput{Name: "Amen Bank - Sousse", Code: " ag002 ", City: "Sousse"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Code != "AG002" {
		t.Fatalf("expected upper-case code, got %q", a.Code)
	}
	if _, err := svc.Create(ctx, admin, CreateInput{Name: "Duplicate", Code: "AG002"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on duplicate code, got %v", err)
	}
	if _, err := svc.Create(ctx, admin, CreateInput{Name: "X", Code: "AG009"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for short name, got %v", err)
	}

	agencyUser := &authz.Principal{ID: "u1", Role: authz.RoleAgency, AgencyID: a.ID}
	if _, err := svc.Create(ctx, agencyUser, CreateInput{Name: "Amen Bank - Gabes", Code: "AG010"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}
	list, err := svc.List(ctx, agencyUser)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	if _, err := svc.Get(ctx, "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandlerCreateRequiresAdmin(t *testing.T) {
	h := NewHandler(NewService(NewMemoryRepository()))
	app := fiber.New(fiber.Config{ErrorHandler: respond.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-Test-Role") == "admin" {
			c.Locals("principal", admin)
		} else {
			c.Locals("principal", &authz.Principal{ID: "u1", Role: authz.RoleCentralCash})
		}
		return c.Next()
	})
	app.Post("/agencies", h.Create)

	body := `{"name":"Amen Bank - Bizerte","code":"AG011","city":"Bizerte"}`
	req := httptest.NewRequest(http.MethodPost, "/agencies", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/agencies", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-Role", "admin")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
}
