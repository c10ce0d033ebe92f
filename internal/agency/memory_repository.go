package agency

import (
	"context"
	"sort"
	"sync"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

type memoryRepository struct {
	mu       sync.RWMutex
	agencies map[string]Agency
}

// NewMemoryRepository builds an in-memory agency store.
func NewMemoryRepository() Repository {
	return &memoryRepository{agencies: make(map[string]Agency)}
}

func (r *memoryRepository) Create(_ context.Context, agency Agency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.agencies {
		if existing.Code == agency.Code {
			return apperr.New(apperr.KindConflict, "agency code already exists")
		}
	}
	r.agencies[agency.ID] = agency
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Agency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agencies[id]
	if !ok {
		return Agency{}, apperr.New(apperr.KindNotFound, "agency not found")
	}
	return a, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Agency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agency, 0, len(r.agencies))
	for _, a := range r.agencies {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
