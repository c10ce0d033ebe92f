package request

import (
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows FindMany. Zero fields do not filter.
type Filter struct {
	Statuses  []Status
	Type      Type
	AgencyID  string
	Search    string
	DateFrom  *time.Time
	DateTo    *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// SortKey names an allowed ordering column.
type SortKey string

const (
	SortCreatedAt   SortKey = "createdAt"
	SortTotalAmount SortKey = "totalAmount"
	SortStatus      SortKey = "status"
	SortAgency      SortKey = "agency"
)

// ParseSortKey maps a raw key onto a SortKey, defaulting to createdAt.
func ParseSortKey(raw string) SortKey {
	switch SortKey(raw) {
	case SortTotalAmount, SortStatus, SortAgency:
		return SortKey(raw)
	default:
		return SortCreatedAt
	}
}

// Sort orders FindMany results.
type Sort struct {
	Key  SortKey
	Desc bool
}

// DefaultSort lists newest requests first.
var DefaultSort = Sort{Key: SortCreatedAt, Desc: true}

func (f Filter) hasStatus(s Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

func (f Filter) statusStrings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}
