package audit

import (
	"context"
	"strings"
	"sync"

	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// MemoryStore keeps audit entries in process memory. The request memory
// repository appends to it while holding its own lock, which gives the same
// all-or-nothing behaviour as a shared database transaction.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records entries in order.
func (s *MemoryStore) Append(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

// ListByRequest returns the trail for one request, oldest first.
func (s *MemoryStore) ListByRequest(_ context.Context, requestID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// List runs the cross-request query, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter, page pagination.Request) ([]Entry, int, error) {
	s.mu.RLock()
	matched := make([]Entry, 0, len(s.entries))
	action := strings.ToLower(filter.Action)
	for _, e := range s.entries {
		if filter.UserID != "" && (e.UserID == nil || *e.UserID != filter.UserID) {
			continue
		}
		if filter.RequestID != "" && e.RequestID != filter.RequestID {
			continue
		}
		if action != "" && !strings.Contains(strings.ToLower(string(e.Action)), action) {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	// Appends are chronological, so reversing yields newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	start, end := pagination.Window(page, len(matched))
	return matched[start:end], len(matched), nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
