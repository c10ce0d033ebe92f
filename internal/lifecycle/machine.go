package lifecycle

import (
	"fmt"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/notification"
	"github.com/rayenfassatoui/amen-bank/internal/request"
)

// Transition names a lifecycle step applied to an existing request.
type Transition string

const (
	TransitionValidate       Transition = "validate"
	TransitionReject         Transition = "reject"
	TransitionAssignTeam     Transition = "assignTeam"
	TransitionDispatch       Transition = "dispatch"
	TransitionConfirmReceipt Transition = "confirmReceipt"
)

// step holds the guard and side-effect labels of a transition. Legal source
// states live in Available.
type step struct {
	action authz.Action
	audit  audit.Action
	event  string
}

var steps = map[Transition]step{
	TransitionValidate:       {authz.ActionValidateRequest, audit.ActionRequestValidated, notification.KindRequestValidated},
	TransitionReject:         {authz.ActionRejectRequest, audit.ActionRequestRejected, notification.KindRequestRejected},
	TransitionAssignTeam:     {authz.ActionAssignTeam, audit.ActionTeamAssigned, notification.KindTeamAssigned},
	TransitionDispatch:       {authz.ActionDispatch, audit.ActionRequestDispatched, notification.KindRequestDispatched},
	TransitionConfirmReceipt: {authz.ActionConfirmReceipt, audit.ActionRequestReceived, notification.KindRequestReceived},
}

// Available lists the transitions legal from status. The switch is
// exhaustive over request.Status; a new status must be placed here.
func Available(status request.Status) []Transition {
	switch status {
	case request.StatusSubmitted:
		return []Transition{TransitionValidate, TransitionReject}
	case request.StatusValidated:
		return []Transition{TransitionAssignTeam}
	case request.StatusAssigned:
		return []Transition{TransitionDispatch}
	case request.StatusDispatched:
		return []Transition{TransitionConfirmReceipt}
	case request.StatusRejected, request.StatusReceived, request.StatusCompleted, request.StatusCancelled:
		return nil
	default:
		panic(fmt.Sprintf("lifecycle: unhandled status %q", status))
	}
}

// Terminal reports whether no transition leaves status.
func Terminal(status request.Status) bool {
	return len(Available(status)) == 0
}

// Target returns the status t leads to. Receipt ends in RECEIVED when
// non-compliance was reported and in COMPLETED otherwise.
func Target(t Transition, nonCompliance request.NonCompliance) request.Status {
	switch t {
	case TransitionValidate:
		return request.StatusValidated
	case TransitionReject:
		return request.StatusRejected
	case TransitionAssignTeam:
		return request.StatusAssigned
	case TransitionDispatch:
		return request.StatusDispatched
	case TransitionConfirmReceipt:
		if nonCompliance == request.NonComplianceYes {
			return request.StatusReceived
		}
		return request.StatusCompleted
	default:
		panic(fmt.Sprintf("lifecycle: unknown transition %q", t))
	}
}

// Check fails with INVALID_STATE_TRANSITION when t is not legal from current.
func Check(current request.Status, t Transition) error {
	for _, allowed := range Available(current) {
		if allowed == t {
			return nil
		}
	}
	return apperr.WithMetadata(apperr.KindInvalidStateTransition,
		fmt.Sprintf("cannot %s a request in status %s", t, current),
		map[string]string{"current": string(current), "attempted": string(t)})
}
