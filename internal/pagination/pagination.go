package pagination

import "math"

// MaxLimit caps any page size a caller may request.
const MaxLimit = 100

// Request is a 1-based page request.
type Request struct {
	Page  int
	Limit int
}

// Normalize fills defaults and clamps the limit.
func (r Request) Normalize(defaultLimit int) Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = defaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	if maxPage := math.MaxInt / r.Limit; r.Page > maxPage {
		r.Page = maxPage
	}
	return r
}

// Offset returns the number of rows to skip. It saturates instead of
// overflowing for pages far past the end.
func (r Request) Offset() int {
	if r.Page <= 1 || r.Limit <= 0 {
		return 0
	}
	if r.Page-1 > (math.MaxInt-r.Limit)/r.Limit {
		return math.MaxInt - r.Limit
	}
	return (r.Page - 1) * r.Limit
}

// Meta is the pagination block returned alongside list results.
type Meta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// NewMeta computes the pagination block for a normalized request.
func NewMeta(r Request, total int) Meta {
	pages := 0
	if r.Limit > 0 {
		pages = (total + r.Limit - 1) / r.Limit
	}
	return Meta{
		Page:       r.Page,
		Limit:      r.Limit,
		Total:      total,
		TotalPages: pages,
		HasMore:    r.Offset()+r.Limit < total,
	}
}

// Window returns the [start, end) slice bounds of r over n items.
func Window(r Request, n int) (int, int) {
	start := r.Offset()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + r.Limit
	if end > n || end < start {
		end = n
	}
	return start, end
}
