package request

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// MemoryRepository keeps requests in process memory. A single mutex
// serialises writers, so a transition's precondition check and write are
// indivisible just as they are under a row lock.
type MemoryRepository struct {
	mu       sync.RWMutex
	requests map[string]FundRequest
	order    []string
	audit    *audit.MemoryStore
}

// NewMemoryRepository builds a repository that appends audit entries to log.
func NewMemoryRepository(log *audit.MemoryStore) *MemoryRepository {
	return &MemoryRepository{requests: make(map[string]FundRequest), audit: log}
}

// FindByID returns a copy of the stored request.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (FundRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return FundRequest{}, apperr.New(apperr.KindNotFound, "request not found")
	}
	return clone(req), nil
}

// CreateWithLines stores req and its creation entry together.
func (r *MemoryRepository) CreateWithLines(_ context.Context, req FundRequest, entry audit.Entry) (FundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.ID]; exists {
		return FundRequest{}, apperr.New(apperr.KindConflict, "request already exists")
	}
	if req.Version == 0 {
		req.Version = 1
	}
	r.requests[req.ID] = clone(req)
	r.order = append(r.order, req.ID)
	r.audit.Append(entry)
	return clone(req), nil
}

// Transition applies mutate to the current state under the write lock.
func (r *MemoryRepository) Transition(_ context.Context, id string, mutate Mutation) (FundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[id]
	if !ok {
		return FundRequest{}, apperr.New(apperr.KindNotFound, "request not found")
	}
	next, entry, err := mutate(clone(current))
	if err != nil {
		return FundRequest{}, err
	}
	next.Version = current.Version + 1
	next.Lines = current.Lines
	r.requests[id] = clone(next)
	r.audit.Append(entry)
	return clone(next), nil
}

// FindMany filters, sorts and pages the stored requests.
func (r *MemoryRepository) FindMany(_ context.Context, filter Filter, order Sort, page pagination.Request) ([]FundRequest, int, error) {
	matched := r.match(filter)
	sortRequests(matched, order)
	start, end := pagination.Window(page, len(matched))
	out := make([]FundRequest, 0, end-start)
	for _, req := range matched[start:end] {
		out = append(out, clone(req))
	}
	return out, len(matched), nil
}

// Summarize groups matching requests by status.
func (r *MemoryRepository) Summarize(_ context.Context, filter Filter) ([]StatusTotal, error) {
	totals := make(map[Status]*StatusTotal)
	for _, req := range r.match(filter) {
		t, ok := totals[req.Status]
		if !ok {
			t = &StatusTotal{Status: req.Status, Amount: decimal.Zero}
			totals[req.Status] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(req.TotalAmount)
	}
	out := make([]StatusTotal, 0, len(totals))
	for _, s := range Statuses {
		if t, ok := totals[s]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) match(filter Filter) []FundRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(filter.Search))
	out := make([]FundRequest, 0, len(r.order))
	for _, id := range r.order {
		req := r.requests[id]
		if !filter.hasStatus(req.Status) {
			continue
		}
		if filter.Type != "" && req.Type != filter.Type {
			continue
		}
		if filter.AgencyID != "" && req.AgencyID != filter.AgencyID {
			continue
		}
		if filter.DateFrom != nil && req.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && req.CreatedAt.After(*filter.DateTo) {
			continue
		}
		if filter.MinAmount != nil && req.TotalAmount.LessThan(*filter.MinAmount) {
			continue
		}
		if filter.MaxAmount != nil && req.TotalAmount.GreaterThan(*filter.MaxAmount) {
			continue
		}
		if needle != "" {
			haystack := fold.String(req.AgencyName + "\x00" + req.AgencyCode + "\x00" + req.RequesterName)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		out = append(out, req)
	}
	return out
}

func sortRequests(reqs []FundRequest, order Sort) {
	less := func(a, b FundRequest) bool {
		switch order.Key {
		case SortTotalAmount:
			return a.TotalAmount.LessThan(b.TotalAmount)
		case SortStatus:
			return a.Status < b.Status
		case SortAgency:
			return a.AgencyName < b.AgencyName
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if order.Desc {
			return less(reqs[j], reqs[i])
		}
		return less(reqs[i], reqs[j])
	})
}

func clone(req FundRequest) FundRequest {
	if req.Lines != nil {
		req.Lines = append([]ledger.Line(nil), req.Lines...)
	}
	if req.Team != nil {
		team := *req.Team
		req.Team = &team
	}
	req.Logs = nil
	return req
}
