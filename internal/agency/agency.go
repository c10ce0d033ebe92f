// Package agency manages the bank agencies that own fund requests.
package agency

import (
	"context"
	"time"
)

// Agency is a bank branch or department.
type Agency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	City      string    `json:"city"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository persists agencies.
type Repository interface {
	Create(ctx context.Context, agency Agency) error
	FindByID(ctx context.Context, id string) (Agency, error)
	List(ctx context.Context) ([]Agency, error)
}
