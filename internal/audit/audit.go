// Package audit records the immutable trail of actions taken on fund
// requests. Entries are appended inside the same unit of work as the
// mutation they describe and are never updated or deleted.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// Action labels an audit entry.
type Action string

const (
	ActionRequestCreated    Action = "REQUEST_CREATED"
	ActionRequestValidated  Action = "REQUEST_VALIDATED"
	ActionRequestRejected   Action = "REQUEST_REJECTED"
	ActionTeamAssigned      Action = "TEAM_ASSIGNED"
	ActionRequestDispatched Action = "REQUEST_DISPATCHED"
	ActionRequestReceived   Action = "REQUEST_RECEIVED"
)

// SystemActor is the descriptor used when no principal is attached.
const SystemActor = "system"

// Entry is one immutable audit record.
type Entry struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	PerformedBy string    `json:"performedBy"`
	UserID      *string   `json:"userId"`
	RequestID   string    `json:"requestId"`
	Details     string    `json:"details"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewEntry builds the record for an action. A nil actor marks the entry as
// system-originated.
func NewEntry(requestID string, action Action, actor *authz.Principal, details string, at time.Time) Entry {
	e := Entry{
		ID:          uuid.NewString(),
		Action:      action,
		PerformedBy: SystemActor,
		RequestID:   requestID,
		Details:     details,
		CreatedAt:   at.UTC(),
	}
	if actor != nil {
		e.PerformedBy = actor.Descriptor()
		if actor.ID != "" {
			id := actor.ID
			e.UserID = &id
		}
	}
	return e
}

// Filter narrows the cross-request audit query.
type Filter struct {
	UserID    string
	RequestID string
	// Action matches as a case-insensitive substring.
	Action string
	From   *time.Time
	To     *time.Time
}

// Reader is the read side of the audit store.
type Reader interface {
	List(ctx context.Context, filter Filter, page pagination.Request) ([]Entry, int, error)
	ListByRequest(ctx context.Context, requestID string) ([]Entry, error)
}
