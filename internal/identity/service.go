package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
)

const minPasswordLength = 8

// AgencyLookup resolves the agency a user belongs to.
type AgencyLookup interface {
	Get(ctx context.Context, id string) (agency.Agency, error)
}

// Service manages users and credential checks.
type Service struct {
	repo     Repository
	agencies AgencyLookup
	cost     int
	now      func() time.Time
}

// NewService creates a new identity service. A zero cost uses bcrypt.DefaultCost.
func NewService(repo Repository, agencies AgencyLookup, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, agencies: agencies, cost: cost, now: time.Now}
}

var errBadCredentials = apperr.New(apperr.KindAuthentication, "invalid email or password")

// Authenticate verifies email and password. Unknown emails, wrong passwords
// and deactivated accounts all fail with the same AUTHENTICATION error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return User{}, errBadCredentials
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, errBadCredentials
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// VerifyPassword re-checks the stored credential of userID.
func (s *Service) VerifyPassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return apperr.New(apperr.KindAuthentication, "password required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.New(apperr.KindAuthentication, "invalid password")
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return apperr.New(apperr.KindAuthentication, "invalid password")
	}
	return nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetUser returns one user. Administrator only.
func (s *Service) GetUser(ctx context.Context, p *authz.Principal, id string) (User, error) {
	if _, err := authz.Authorize(p, authz.ActionManageUsers); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, id)
}

// ListUsers returns every user. Administrator only.
func (s *Service) ListUsers(ctx context.Context, p *authz.Principal) ([]User, error) {
	if _, err := authz.Authorize(p, authz.ActionManageUsers); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// CreateUser registers a user. Administrator only.
func (s *Service) CreateUser(ctx context.Context, p *authz.Principal, in CreateUserInput) (User, error) {
	if _, err := authz.Authorize(p, authz.ActionManageUsers); err != nil {
		return User{}, err
	}
	email, err := parseEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	if err := checkName("firstName", in.FirstName); err != nil {
		return User{}, err
	}
	if err := checkName("lastName", in.LastName); err != nil {
		return User{}, err
	}
	if err := s.checkAssignment(ctx, in.Role, in.AgencyID); err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		AgencyID:     in.AgencyID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser applies the non-nil fields of in. Administrator only.
func (s *Service) UpdateUser(ctx context.Context, p *authz.Principal, id string, in UpdateUserInput) (User, error) {
	if _, err := authz.Authorize(p, authz.ActionManageUsers); err != nil {
		return User{}, err
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.FirstName != nil {
		if err := checkName("firstName", *in.FirstName); err != nil {
			return User{}, err
		}
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		if err := checkName("lastName", *in.LastName); err != nil {
			return User{}, err
		}
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		user.Role = *in.Role
	}
	if in.AgencyID != nil {
		user.AgencyID = *in.AgencyID
	}
	if in.Role != nil || in.AgencyID != nil {
		if err := s.checkAssignment(ctx, user.Role, user.AgencyID); err != nil {
			return User{}, err
		}
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.Password != nil {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	// Role, agency, status or password changes revoke outstanding tokens.
	if in.Role != nil || in.AgencyID != nil || in.IsActive != nil || in.Password != nil {
		ver, err := s.repo.IncrementTokenVersion(ctx, user.ID)
		if err != nil {
			return User{}, err
		}
		user.TokenVersion = ver
	}
	return user, nil
}

func (s *Service) hash(password string) ([]byte, error) {
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("password", "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "password cannot be hashed", err)
	}
	return hash, nil
}

func (s *Service) checkAssignment(ctx context.Context, role authz.Role, agencyID string) error {
	if !role.Valid() {
		return apperr.Validation("role", "unknown role")
	}
	if agencyID == "" {
		return apperr.Validation("agencyId", "agencyId is required")
	}
	if _, err := s.agencies.Get(ctx, agencyID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.Validation("agencyId", "agency does not exist")
		}
		return err
	}
	return nil
}

func parseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperr.Validation("email", "invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func checkName(field, value string) error {
	if len(strings.TrimSpace(value)) < 2 {
		return apperr.Validation(field, field+" must be at least 2 characters")
	}
	return nil
}
