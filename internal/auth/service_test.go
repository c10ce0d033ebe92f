package auth

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/config"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
)

var admin = &authz.Principal{ID: "admin-1", Name: "Admin", Role: authz.RoleAdministrator}

const password = "password123"

func newTestService(t *testing.T) (*Service, *identity.Service, identity.User) {
	t.Helper()
	ctx := context.Background()
	agencies := agency.NewService(agency.NewMemoryRepository())
	a, err := agencies.Create(ctx, admin, agency.CreateInput{Name: "Amen Bank - Tunis Centre", Code: "AG001"})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, agencies, bcrypt.MinCost)
	user, err := ids.CreateUser(ctx, admin, identity.CreateUserInput{
		Email: "agency@amenbank.com.tn", Password: password,
		FirstName: "Ahmed", LastName: "Ben Ali", Role: authz.RoleAgency, AgencyID: a.ID,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cfg := config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewService(cfg, ids, repo), ids, user
}

func TestLoginResolveAndRefresh(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, user.Email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := svc.Resolve(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ID != user.ID || p.Role != authz.RoleAgency || p.AgencyID != user.AgencyID {
		t.Fatalf("unexpected principal %+v", p)
	}

	access, expiresIn, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if expiresIn != 60 {
		t.Fatalf("expected 60s expiry, got %d", expiresIn)
	}
	if _, err := svc.Resolve(ctx, access); err != nil {
		t.Fatalf("refreshed token must resolve: %v", err)
	}
}

func TestTokensCannotSwapRoles(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	pair, _, err := svc.Login(ctx, user.Email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Resolve(ctx, pair.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("refresh token used as access token: expected UNAUTHENTICATED, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.AccessToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("access token used as refresh token: expected UNAUTHENTICATED, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "not-a-token"); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("garbage token: expected UNAUTHENTICATED, got %v", err)
	}
}

func TestLogoutInvalidatesOutstandingTokens(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()
	pair, _, err := svc.Login(ctx, user.Email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, pair.AccessToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("stale access token: expected UNAUTHENTICATED, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("stale refresh token: expected UNAUTHENTICATED, got %v", err)
	}

	fresh, _, err := svc.Login(ctx, user.Email, password)
	if err != nil {
		t.Fatalf("login after logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("new token must resolve: %v", err)
	}
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	svc, ids, user := newTestService(t)
	ctx := context.Background()
	pair, _, err := svc.Login(ctx, user.Email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Flip the flag without touching the token version.
	stored, err := svc.idRepo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	stored.IsActive = false
	if err := svc.idRepo.Update(ctx, stored); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if _, err := svc.Resolve(ctx, pair.AccessToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("inactive user: expected UNAUTHENTICATED, got %v", err)
	}
	stored.IsActive = true
	if err := svc.idRepo.Update(ctx, stored); err != nil {
		t.Fatalf("reactivate user: %v", err)
	}
	if _, err := svc.Resolve(ctx, pair.AccessToken); err != nil {
		t.Fatalf("reactivated user with current version must resolve: %v", err)
	}

	inactive := false
	if _, err := ids.UpdateUser(ctx, admin, user.ID, identity.UpdateUserInput{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Resolve(ctx, pair.AccessToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("deactivated user: expected UNAUTHENTICATED, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("deactivated user refresh: expected UNAUTHENTICATED, got %v", err)
	}
}
