// Package request owns the persisted fund request records, their
// denomination lines and the team assignments attached to them.
package request

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// Status is the position of a request in its lifecycle.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusValidated  Status = "VALIDATED"
	StatusRejected   Status = "REJECTED"
	StatusAssigned   Status = "ASSIGNED"
	StatusDispatched Status = "DISPATCHED"
	StatusReceived   Status = "RECEIVED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusSubmitted, StatusValidated, StatusRejected, StatusAssigned,
	StatusDispatched, StatusReceived, StatusCompleted, StatusCancelled,
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	for _, known := range Statuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Type distinguishes cash provisioning from cash deposits.
type Type string

const (
	TypeProvisionnement Type = "PROVISIONNEMENT"
	TypeVersement       Type = "VERSEMENT"
)

// Valid reports whether t is a known request type.
func (t Type) Valid() bool {
	return t == TypeProvisionnement || t == TypeVersement
}

// NonCompliance records whether the receiving agency reported a discrepancy.
// The zero value means unset.
type NonCompliance string

const (
	NonComplianceYes NonCompliance = "YES"
	NonComplianceNo  NonCompliance = "NO"
)

// TeamAssignment is the escort team bound to a request. It is the only
// representation of an assignment; the team label on the request is derived
// from it.
type TeamAssignment struct {
	ID             string    `json:"id"`
	TeamName       string    `json:"teamName"`
	DriverCIN      string    `json:"cinChauffeur"`
	TransporterCIN string    `json:"cinTransporteur"`
	AssignedBy     string    `json:"assignedBy"`
	AssignedAt     time.Time `json:"assignedAt"`
}

// FundRequest is one transfer operation between an agency and central cash.
type FundRequest struct {
	ID                   string          `json:"id"`
	Type                 Type            `json:"requestType"`
	Status               Status          `json:"status"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	Currency             string          `json:"currency"`
	Description          *string         `json:"description"`
	TeamAssigned         *string         `json:"teamAssigned"`
	Team                 *TeamAssignment `json:"securityTeam,omitempty"`
	DispatchedBy         *string         `json:"dispatchedBy"`
	DispatchedAt         *time.Time      `json:"dispatchedAt"`
	ReceivedBy           *string         `json:"receivedBy"`
	ReceivedAt           *time.Time      `json:"receivedAt"`
	NonCompliance        NonCompliance   `json:"nonCompliance,omitempty"`
	NonComplianceDetails *string         `json:"nonComplianceDetails"`
	AgencyID             string          `json:"agencyId"`
	UserID               string          `json:"userId"`
	AgencyName           string          `json:"agencyName,omitempty"`
	AgencyCode           string          `json:"agencyCode,omitempty"`
	RequesterName        string          `json:"requesterName,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	Lines                []ledger.Line   `json:"denominationDetails,omitempty"`
	Logs                 []audit.Entry   `json:"actionLogs,omitempty"`
}

// Mutation computes the next state of a request from its current,
// locked state together with the audit entry recording the change. An error
// aborts the transition without writing anything.
type Mutation func(current FundRequest) (FundRequest, audit.Entry, error)

// StatusTotal aggregates requests sharing a status.
type StatusTotal struct {
	Status Status          `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"totalAmount"`
}

// Repository persists fund requests.
type Repository interface {
	FindByID(ctx context.Context, id string) (FundRequest, error)
	FindMany(ctx context.Context, filter Filter, sort Sort, page pagination.Request) ([]FundRequest, int, error)
	CreateWithLines(ctx context.Context, req FundRequest, entry audit.Entry) (FundRequest, error)
	Transition(ctx context.Context, id string, mutate Mutation) (FundRequest, error)
	Summarize(ctx context.Context, filter Filter) ([]StatusTotal, error)
}
