package audit

import (
	"context"

	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// DefaultPageSize is the audit query page size when none is requested.
const DefaultPageSize = 50

// Page is one page of audit results.
type Page struct {
	Entries    []Entry         `json:"logs"`
	Pagination pagination.Meta `json:"pagination"`
}

// Service exposes the administrator audit query.
type Service struct {
	reader Reader
}

// NewService constructs the audit query service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// List returns entries matching filter. Only administrators may query the
// trail across requests.
func (s *Service) List(ctx context.Context, p *authz.Principal, filter Filter, page pagination.Request) (Page, error) {
	if _, err := authz.Authorize(p, authz.ActionViewAuditLog); err != nil {
		return Page{}, err
	}
	page = page.Normalize(DefaultPageSize)
	entries, total, err := s.reader.List(ctx, filter, page)
	if err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Pagination: pagination.NewMeta(page, total)}, nil
}
