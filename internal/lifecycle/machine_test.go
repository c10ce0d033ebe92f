package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/request"
)

func TestCheckTable(t *testing.T) {
	legal := map[request.Status][]Transition{
		request.StatusSubmitted:  {TransitionValidate, TransitionReject},
		request.StatusValidated:  {TransitionAssignTeam},
		request.StatusAssigned:   {TransitionDispatch},
		request.StatusDispatched: {TransitionConfirmReceipt},
	}
	all := []Transition{TransitionValidate, TransitionReject, TransitionAssignTeam, TransitionDispatch, TransitionConfirmReceipt}

	for _, status := range request.Statuses {
		allowed := map[Transition]bool{}
		for _, tr := range legal[status] {
			allowed[tr] = true
		}
		for _, tr := range all {
			err := Check(status, tr)
			if allowed[tr] {
				assert.NoError(t, err, "%s from %s", tr, status)
				continue
			}
			assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(err), "%s from %s", tr, status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []request.Status{request.StatusRejected, request.StatusReceived, request.StatusCompleted, request.StatusCancelled} {
		assert.True(t, Terminal(s), s)
	}
	assert.False(t, Terminal(request.StatusSubmitted))
	assert.Panics(t, func() { Available(request.Status("LOST")) })
}

func TestTargetOfReceipt(t *testing.T) {
	assert.Equal(t, request.StatusReceived, Target(TransitionConfirmReceipt, request.NonComplianceYes))
	assert.Equal(t, request.StatusCompleted, Target(TransitionConfirmReceipt, request.NonComplianceNo))
	assert.Equal(t, request.StatusAssigned, Target(TransitionAssignTeam, ""))
}

func TestCheckMetadata(t *testing.T) {
	err := Check(request.StatusSubmitted, TransitionDispatch)
	var appErr *apperr.Error
	if assert.ErrorAs(t, err, &appErr) {
		assert.Equal(t, "SUBMITTED", appErr.Metadata["current"])
		assert.Equal(t, "dispatch", appErr.Metadata["attempted"])
	}
}
