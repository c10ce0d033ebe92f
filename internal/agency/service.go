package agency

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
)

// Service exposes agency queries and administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an agency service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput carries the fields of a new agency.
type CreateInput struct {
	Name    string
	Code    string
	City    string
	Address string
	Phone   string
}

// List returns every agency. Any authenticated role may list agencies.
func (s *Service) List(ctx context.Context, p *authz.Principal) ([]Agency, error) {
	if _, err := authz.Authorize(p, authz.ActionViewAgencies); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Get returns one agency.
func (s *Service) Get(ctx context.Context, id string) (Agency, error) {
	return s.repo.FindByID(ctx, id)
}

// Create registers a new agency. Codes are stored upper-case.
func (s *Service) Create(ctx context.Context, p *authz.Principal, in CreateInput) (Agency, error) {
	if _, err := authz.Authorize(p, authz.ActionManageAgencies); err != nil {
		return Agency{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if len(in.Name) < 2 {
		return Agency{}, apperr.Validation("name", "name must be at least 2 characters")
	}
	if len(in.Code) < 2 {
		return Agency{}, apperr.Validation("code", "code must be at least 2 characters")
	}
	a := Agency{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Code:      in.Code,
		City:      strings.TrimSpace(in.City),
		Address:   strings.TrimSpace(in.Address),
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Agency{}, err
	}
	return a, nil
}
