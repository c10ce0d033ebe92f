package lifecycle

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/logging"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
	"github.com/rayenfassatoui/amen-bank/internal/request"
)

const agencyPassword = "password123"

type harness struct {
	engine   *Engine
	log      *audit.MemoryStore
	spans    *tracetest.SpanRecorder
	agencyA  *authz.Principal
	agencyB  *authz.Principal
	cash     *authz.Principal
	security *authz.Principal
	admin    *authz.Principal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	admin := &authz.Principal{ID: "admin-1", Name: "System Administrator", Role: authz.RoleAdministrator}

	agencies := agency.NewService(agency.NewMemoryRepository())
	tunis, err := agencies.Create(ctx, admin, agency.CreateInput{Name: "Amen Bank - Tunis Centre", Code: "AG001", City: "Tunis"})
	require.NoError(t, err)
	sfax, err := agencies.Create(ctx, admin, agency.CreateInput{Name: "Amen Bank - Sfax", Code: "AG003", City: "Sfax"})
	require.NoError(t, err)

	users := identity.NewService(identity.NewMemoryRepository(), agencies, bcrypt.MinCost)
	newAgencyUser := func(email, agencyID string) *authz.Principal {
		u, err := users.CreateUser(ctx, admin, identity.CreateUserInput{
			Email: email, Password: agencyPassword, FirstName: "Ahmed", LastName: "Ben Salah",
			Role: authz.RoleAgency, AgencyID: agencyID,
		})
		require.NoError(t, err)
		p := u.Principal()
		return &p
	}

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	log := audit.NewMemoryStore()
	engine := NewEngine(Deps{
		Requests:  request.NewMemoryRepository(log),
		AuditLog:  log,
		Agencies:  agencies,
		Passwords: users,
		Logger:    logging.Discard(),
		Tracer:    provider.Tracer("test"),
		Currency:  "TND",
	})

	return &harness{
		engine:   engine,
		log:      log,
		spans:    recorder,
		agencyA:  newAgencyUser("agency@amenbank.com.tn", tunis.ID),
		agencyB:  newAgencyUser("sfax@amenbank.com.tn", sfax.ID),
		cash:     &authz.Principal{ID: "cash-1", Name: "Mohamed Trabelsi", Role: authz.RoleCentralCash},
		security: &authz.Principal{ID: "sec-1", Name: "Karim Mansouri", Role: authz.RoleTunisiaSecurity},
		admin:    admin,
	}
}

func sixThousand() []ledger.Line {
	return []ledger.Line{
		{Type: ledger.Bill, Denomination: decimal.NewFromInt(50), Quantity: 100},
		{Type: ledger.Bill, Denomination: decimal.NewFromInt(20), Quantity: 50},
	}
}

func (h *harness) submit(t *testing.T) request.FundRequest {
	t.Helper()
	req, err := h.engine.Create(context.Background(), h.agencyA, CreateInput{
		Type:        request.TypeProvisionnement,
		TotalAmount: decimal.NewFromInt(6000),
		Lines:       sixThousand(),
	})
	require.NoError(t, err)
	return req
}

func (h *harness) dispatched(t *testing.T) request.FundRequest {
	t.Helper()
	ctx := context.Background()
	req := h.submit(t)
	_, err := h.engine.Validate(ctx, h.cash, req.ID)
	require.NoError(t, err)
	_, err = h.engine.AssignTeam(ctx, h.security, req.ID, AssignTeamInput{TeamName: "Team Alpha", DriverCIN: "12345678", TransporterCIN: "87654321"})
	require.NoError(t, err)
	out, err := h.engine.Dispatch(ctx, h.security, req.ID, DispatchInput{DispatchedBy: "Karim Mansouri"})
	require.NoError(t, err)
	return out
}

func TestCreateReconcilesDenominations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.submit(t)
	assert.Equal(t, request.StatusSubmitted, req.Status)
	assert.Equal(t, "TND", req.Currency)
	assert.Equal(t, "Amen Bank - Tunis Centre", req.AgencyName)
	require.Len(t, req.Lines, 2)
	assert.True(t, req.Lines[0].TotalValue.Equal(decimal.NewFromInt(5000)))

	got, err := h.engine.Get(ctx, h.agencyA, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, audit.ActionRequestCreated, got.Logs[0].Action)
	assert.Equal(t, "Created PROVISIONNEMENT request for 6000 TND", got.Logs[0].Details)

	_, err = h.engine.Create(ctx, h.agencyA, CreateInput{
		Type:        request.TypeProvisionnement,
		TotalAmount: decimal.NewFromInt(6001),
		Lines:       sixThousand(),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 1, h.log.Len(), "rejected payload must not be audited")
}

func TestCreateRejectsBadPayloads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   CreateInput
	}{
		{"unknown type", CreateInput{Type: "LOAN", TotalAmount: decimal.NewFromInt(6000), Lines: sixThousand()}},
		{"foreign currency", CreateInput{Type: request.TypeVersement, Currency: "EUR", TotalAmount: decimal.NewFromInt(6000), Lines: sixThousand()}},
		{"bogus currency", CreateInput{Type: request.TypeVersement, Currency: "XYZW", TotalAmount: decimal.NewFromInt(6000), Lines: sixThousand()}},
		{"no lines", CreateInput{Type: request.TypeVersement, TotalAmount: decimal.NewFromInt(10)}},
		{"unissued note", CreateInput{Type: request.TypeVersement, TotalAmount: decimal.NewFromInt(25), Lines: []ledger.Line{
			{Type: ledger.Bill, Denomination: decimal.NewFromInt(25), Quantity: 1},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Create(ctx, h.agencyA, tc.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := h.engine.Create(ctx, h.cash, CreateInput{Type: request.TypeVersement, TotalAmount: decimal.NewFromInt(6000), Lines: sixThousand()})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = h.engine.Create(ctx, nil, CreateInput{})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestFullLifecycleCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.dispatched(t)
	assert.Equal(t, request.StatusDispatched, req.Status)
	require.NotNil(t, req.Team)
	assert.Equal(t, "Team Alpha", *req.TeamAssigned)
	assert.Equal(t, "Karim Mansouri (Tunisia Security)", req.Team.AssignedBy)

	done, err := h.engine.ConfirmReceipt(ctx, h.agencyA, req.ID, ReceiptInput{
		ReceivedBy: "Ahmed Ben Salah", NonCompliance: request.NonComplianceNo, Password: agencyPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, done.Status)
	assert.True(t, Terminal(done.Status))

	got, err := h.engine.Get(ctx, h.cash, req.ID)
	require.NoError(t, err)
	actions := make([]audit.Action, 0, len(got.Logs))
	for _, e := range got.Logs {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{
		audit.ActionRequestReceived, audit.ActionRequestDispatched, audit.ActionTeamAssigned,
		audit.ActionRequestValidated, audit.ActionRequestCreated,
	}, actions)
	assert.Equal(t, "Received by Ahmed Ben Salah", got.Logs[0].Details)
	assert.Equal(t, "Assigned team: Team Alpha (Chauffeur: 12345678, Transporteur: 87654321)", got.Logs[2].Details)
}

func TestConfirmReceiptWithNonCompliance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.dispatched(t)

	_, err := h.engine.ConfirmReceipt(ctx, h.agencyA, req.ID, ReceiptInput{
		ReceivedBy: "Ahmed", NonCompliance: request.NonComplianceYes, Password: agencyPassword,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "details are required")

	got, err := h.engine.ConfirmReceipt(ctx, h.agencyA, req.ID, ReceiptInput{
		ReceivedBy: "Ahmed", NonCompliance: request.NonComplianceYes,
		NonComplianceDetails: "Two 20 TND notes missing", Password: agencyPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, request.StatusReceived, got.Status)
	require.NotNil(t, got.NonComplianceDetails)
	assert.Equal(t, "Two 20 TND notes missing", *got.NonComplianceDetails)
	assert.Empty(t, Available(got.Status))
}

func TestConfirmReceiptGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.dispatched(t)
	before := h.log.Len()

	_, err := h.engine.ConfirmReceipt(ctx, h.agencyB, req.ID, ReceiptInput{ReceivedBy: "Leila", Password: "wrong-password"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "scope is checked before the password")

	_, err = h.engine.ConfirmReceipt(ctx, h.agencyA, req.ID, ReceiptInput{ReceivedBy: "Ahmed", Password: "wrong-password"})
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	_, err = h.engine.ConfirmReceipt(ctx, h.agencyA, req.ID, ReceiptInput{Password: agencyPassword})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	stored, err := h.engine.Get(ctx, h.agencyA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusDispatched, stored.Status)
	assert.Equal(t, before, h.log.Len())
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.engine.Dispatch(ctx, h.security, req.ID, DispatchInput{DispatchedBy: "Karim"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(err))

	got, err := h.engine.Get(ctx, h.cash, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusSubmitted, got.Status)
	assert.Len(t, got.Logs, 1)
}

func TestRejectIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	rejected, err := h.engine.Reject(ctx, h.cash, req.ID, RejectInput{Reason: "Insufficient justification"})
	require.NoError(t, err)
	assert.Equal(t, request.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.Description)
	assert.Equal(t, "Insufficient justification", *rejected.Description)

	for _, call := range []func() error{
		func() error { _, err := h.engine.Validate(ctx, h.cash, req.ID); return err },
		func() error { _, err := h.engine.Reject(ctx, h.cash, req.ID, RejectInput{}); return err },
		func() error {
			_, err := h.engine.AssignTeam(ctx, h.security, req.ID, AssignTeamInput{TeamName: "Team", DriverCIN: "12345678", TransporterCIN: "12345678"})
			return err
		},
	} {
		assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(call()))
	}
}

func TestRoleAndScopeChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.engine.Validate(ctx, h.security, req.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = h.engine.Validate(ctx, h.admin, req.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = h.engine.Get(ctx, h.agencyB, req.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = h.engine.Validate(ctx, h.cash, "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = h.engine.Validate(ctx, h.cash, req.ID)
	require.NoError(t, err)
	_, err = h.engine.AssignTeam(ctx, h.security, req.ID, AssignTeamInput{TeamName: "T", DriverCIN: "123", TransporterCIN: "12345678"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestConcurrentValidateHasOneWinner(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)
	const racers = 8

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Validate(context.Background(), h.cash, req.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperr.KindInvalidStateTransition, apperr.KindOf(err))
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, h.log.Len(), "one creation entry and one validation entry")
}

func TestListScopesByRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.submit(t)
	h.submit(t)
	_, err := h.engine.Create(ctx, h.agencyB, CreateInput{
		Type: request.TypeVersement, TotalAmount: decimal.NewFromInt(6000), Lines: sixThousand(),
	})
	require.NoError(t, err)
	_, err = h.engine.Validate(ctx, h.cash, first.ID)
	require.NoError(t, err)

	own, err := h.engine.List(ctx, h.agencyA, ListQuery{Filter: request.Filter{AgencyID: "someone-else"}})
	require.NoError(t, err)
	assert.Equal(t, 2, own.Pagination.Total)
	assert.Equal(t, DefaultPageSize, own.Pagination.Limit)

	security, err := h.engine.List(ctx, h.security, ListQuery{})
	require.NoError(t, err)
	require.Len(t, security.Requests, 1)
	assert.Equal(t, first.ID, security.Requests[0].ID)

	cash, err := h.engine.List(ctx, h.cash, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, cash.Pagination.Total)

	sum, err := h.engine.Summary(ctx, h.admin, request.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.True(t, sum.TotalAmount.Equal(decimal.NewFromInt(18000)))
}

func TestListPastTheEndIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.submit(t)

	res, err := h.engine.List(context.Background(), h.cash, ListQuery{
		Page: pagination.Request{Page: math.MaxInt / 10, Limit: 100},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Requests)
	assert.Equal(t, 1, res.Pagination.Total)
	assert.False(t, res.Pagination.HasMore)
}

func TestTransitionsAreTraced(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)
	_, _ = h.engine.Dispatch(context.Background(), h.security, req.ID, DispatchInput{})

	names := map[string]bool{}
	for _, s := range h.spans.Ended() {
		names[s.Name()] = true
		if s.Name() == "lifecycle.dispatch" {
			assert.Equal(t, "Error", s.Status().Code.String())
		}
	}
	assert.True(t, names["lifecycle.create"])
	assert.True(t, names["lifecycle.dispatch"])
}
