// Package lifecycle is the fund request state machine. Every operation
// authorizes the principal first, then loads the request, checks the
// transition against the current status and commits the status change with
// its audit entry as one unit of work.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	xcurrency "golang.org/x/text/currency"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/notification"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
	"github.com/rayenfassatoui/amen-bank/internal/request"
	"github.com/rayenfassatoui/amen-bank/internal/telemetry"
)

// DefaultPageSize is the listing page size when none is requested.
const DefaultPageSize = 10

var cinPattern = regexp.MustCompile(`^[0-9]{8,}$`)

// AgencyDirectory resolves the agency owning a new request.
type AgencyDirectory interface {
	Get(ctx context.Context, id string) (agency.Agency, error)
}

// PasswordVerifier re-checks a user's stored credential.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) error
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Requests  request.Repository
	AuditLog  audit.Reader
	Agencies  AgencyDirectory
	Passwords PasswordVerifier
	Notifier  notification.Notifier
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Currency  string
	Clock     func() time.Time
}

// Engine drives fund requests through their lifecycle.
type Engine struct {
	repo      request.Repository
	logs      audit.Reader
	agencies  AgencyDirectory
	passwords PasswordVerifier
	notifier  notification.Notifier
	logger    *slog.Logger
	tracer    trace.Tracer
	currency  string
	catalog   ledger.Catalog
	now       func() time.Time
}

// NewEngine builds an engine. Optional dependencies fall back to no-op
// implementations and the wall clock.
func NewEngine(d Deps) *Engine {
	e := &Engine{
		repo:      d.Requests,
		logs:      d.AuditLog,
		agencies:  d.Agencies,
		passwords: d.Passwords,
		notifier:  d.Notifier,
		logger:    d.Logger,
		tracer:    d.Tracer,
		currency:  strings.ToUpper(d.Currency),
		now:       d.Clock,
	}
	if e.notifier == nil {
		e.notifier = notification.Nop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(telemetry.TracerName)
	}
	if e.currency == "" {
		e.currency = "TND"
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.catalog = ledger.CatalogFor(e.currency)
	return e
}

// CreateInput is the payload of a new request.
type CreateInput struct {
	Type        request.Type
	TotalAmount decimal.Decimal
	Currency    string
	Description string
	Lines       []ledger.Line
}

// RejectInput carries the optional rejection reason.
type RejectInput struct {
	Reason string
}

// AssignTeamInput describes the escort team.
type AssignTeamInput struct {
	TeamName       string
	DriverCIN      string
	TransporterCIN string
}

// DispatchInput names who sent the funds.
type DispatchInput struct {
	DispatchedBy string
}

// ReceiptInput is the confirmation filed by the receiving agency.
type ReceiptInput struct {
	ReceivedBy           string
	NonCompliance        request.NonCompliance
	NonComplianceDetails string
	Password             string
}

// ListQuery narrows a listing.
type ListQuery struct {
	Filter request.Filter
	Sort   request.Sort
	Page   pagination.Request
}

// ListResult is one page of requests.
type ListResult struct {
	Requests   []request.FundRequest `json:"requests"`
	Pagination pagination.Meta       `json:"pagination"`
}

// Summary aggregates the requests visible to a principal.
type Summary struct {
	ByStatus    []request.StatusTotal `json:"byStatus"`
	Total       int                   `json:"total"`
	TotalAmount decimal.Decimal       `json:"totalAmount"`
}

// Create submits a new request on behalf of an agency principal. The
// denomination lines must add up to the declared total.
func (e *Engine) Create(ctx context.Context, p *authz.Principal, in CreateInput) (request.FundRequest, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.create")
	defer span.End()
	start := time.Now()

	req, err := e.create(ctx, p, in)
	e.finish(span, "create", start, err)
	if err != nil {
		return request.FundRequest{}, err
	}
	span.SetAttributes(attribute.String("request.id", req.ID))
	e.logger.Info("request created", "request_id", req.ID, "agency_id", req.AgencyID,
		"actor_id", req.UserID, "amount", req.TotalAmount.String())
	e.publish(ctx, notification.KindRequestCreated, req, p.Descriptor())
	return req, nil
}

func (e *Engine) create(ctx context.Context, p *authz.Principal, in CreateInput) (request.FundRequest, error) {
	actor, err := authz.Authorize(p, authz.ActionCreateRequest)
	if err != nil {
		return request.FundRequest{}, err
	}
	if !in.Type.Valid() {
		return request.FundRequest{}, apperr.Validation("requestType", "requestType must be PROVISIONNEMENT or VERSEMENT")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = e.currency
	}
	if _, err := xcurrency.ParseISO(currency); err != nil {
		return request.FundRequest{}, apperr.Validation("currency", "currency must be an ISO 4217 code")
	}
	if currency != e.currency {
		return request.FundRequest{}, apperr.Validation("currency", "only "+e.currency+" is supported")
	}
	lines, err := ledger.Reconcile(in.Lines, in.TotalAmount, e.catalog)
	if err != nil {
		return request.FundRequest{}, err
	}
	if actor.AgencyID == "" {
		return request.FundRequest{}, apperr.New(apperr.KindForbidden, "principal is not attached to an agency")
	}
	owner, err := e.agencies.Get(ctx, actor.AgencyID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return request.FundRequest{}, apperr.New(apperr.KindForbidden, "principal agency does not exist")
		}
		return request.FundRequest{}, err
	}

	now := e.now().UTC()
	req := request.FundRequest{
		ID:            uuid.NewString(),
		Type:          in.Type,
		Status:        request.StatusSubmitted,
		TotalAmount:   in.TotalAmount,
		Currency:      currency,
		AgencyID:      owner.ID,
		AgencyName:    owner.Name,
		AgencyCode:    owner.Code,
		UserID:        actor.ID,
		RequesterName: actor.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
		Lines:         lines,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		req.Description = &d
	}
	entry := audit.NewEntry(req.ID, audit.ActionRequestCreated, &actor,
		fmt.Sprintf("Created %s request for %s %s", req.Type, req.TotalAmount.String(), req.Currency), now)
	return e.repo.CreateWithLines(ctx, req, entry)
}

// Get returns a request with its lines, team and audit trail, newest entry
// first. Agency principals only see their own agency's requests.
func (e *Engine) Get(ctx context.Context, p *authz.Principal, id string) (request.FundRequest, error) {
	if _, err := authz.Authorize(p, authz.ActionViewRequest); err != nil {
		return request.FundRequest{}, err
	}
	req, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return request.FundRequest{}, err
	}
	if _, err := authz.AuthorizeResource(p, authz.ActionViewRequest, req.AgencyID); err != nil {
		return request.FundRequest{}, err
	}
	logs, err := e.logs.ListByRequest(ctx, req.ID)
	if err != nil {
		return request.FundRequest{}, err
	}
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	req.Logs = logs
	return req, nil
}

// List returns one page of requests visible to p.
func (e *Engine) List(ctx context.Context, p *authz.Principal, q ListQuery) (ListResult, error) {
	actor, err := authz.Authorize(p, authz.ActionListRequests)
	if err != nil {
		return ListResult{}, err
	}
	filter := scopeFilter(actor, q.Filter)
	page := q.Page.Normalize(DefaultPageSize)
	order := q.Sort
	if order.Key == "" {
		order = request.DefaultSort
	}
	reqs, total, err := e.repo.FindMany(ctx, filter, order, page)
	if err != nil {
		return ListResult{}, err
	}
	if reqs == nil {
		reqs = []request.FundRequest{}
	}
	return ListResult{Requests: reqs, Pagination: pagination.NewMeta(page, total)}, nil
}

// Summary counts requests per status under the same scoping as List.
func (e *Engine) Summary(ctx context.Context, p *authz.Principal, filter request.Filter) (Summary, error) {
	actor, err := authz.Authorize(p, authz.ActionListRequests)
	if err != nil {
		return Summary{}, err
	}
	totals, err := e.repo.Summarize(ctx, scopeFilter(actor, filter))
	if err != nil {
		return Summary{}, err
	}
	out := Summary{ByStatus: totals, TotalAmount: decimal.Zero}
	for _, t := range totals {
		out.Total += t.Count
		out.TotalAmount = out.TotalAmount.Add(t.Amount)
	}
	return out, nil
}

// scopeFilter applies the role defaults. Agency principals are pinned to
// their own agency; Central Cash and Tunisia Security see their working
// set of statuses unless a status filter is given.
func scopeFilter(p authz.Principal, f request.Filter) request.Filter {
	switch p.Role {
	case authz.RoleAgency:
		f.AgencyID = p.AgencyID
	case authz.RoleCentralCash:
		if len(f.Statuses) == 0 {
			f.Statuses = []request.Status{request.StatusSubmitted, request.StatusValidated, request.StatusRejected}
		}
	case authz.RoleTunisiaSecurity:
		if len(f.Statuses) == 0 {
			f.Statuses = []request.Status{request.StatusValidated, request.StatusAssigned, request.StatusDispatched}
		}
	}
	return f
}

// Validate approves a submitted request.
func (e *Engine) Validate(ctx context.Context, p *authz.Principal, id string) (request.FundRequest, error) {
	return e.transition(ctx, p, id, TransitionValidate, nil,
		func(cur request.FundRequest, _ authz.Principal, _ time.Time) (request.FundRequest, string) {
			return cur, "Request validated by Central Cash"
		})
}

// Reject refuses a submitted request. The reason, when given, replaces the
// description.
func (e *Engine) Reject(ctx context.Context, p *authz.Principal, id string, in RejectInput) (request.FundRequest, error) {
	reason := strings.TrimSpace(in.Reason)
	return e.transition(ctx, p, id, TransitionReject, nil,
		func(cur request.FundRequest, _ authz.Principal, _ time.Time) (request.FundRequest, string) {
			if reason == "" {
				return cur, "Request rejected by Central Cash"
			}
			cur.Description = &reason
			return cur, reason
		})
}

// AssignTeam binds an escort team to a validated request.
func (e *Engine) AssignTeam(ctx context.Context, p *authz.Principal, id string, in AssignTeamInput) (request.FundRequest, error) {
	in.TeamName = strings.TrimSpace(in.TeamName)
	in.DriverCIN = strings.TrimSpace(in.DriverCIN)
	in.TransporterCIN = strings.TrimSpace(in.TransporterCIN)
	if err := e.precheck(p, TransitionAssignTeam, func() error {
		if len(in.TeamName) < 2 {
			return apperr.Validation("teamName", "teamName must be at least 2 characters")
		}
		if !cinPattern.MatchString(in.DriverCIN) {
			return apperr.Validation("cinChauffeur", "cinChauffeur must contain at least 8 digits")
		}
		if !cinPattern.MatchString(in.TransporterCIN) {
			return apperr.Validation("cinTransporteur", "cinTransporteur must contain at least 8 digits")
		}
		return nil
	}); err != nil {
		return request.FundRequest{}, err
	}
	return e.transition(ctx, p, id, TransitionAssignTeam, nil,
		func(cur request.FundRequest, actor authz.Principal, now time.Time) (request.FundRequest, string) {
			cur.Team = &request.TeamAssignment{
				ID:             uuid.NewString(),
				TeamName:       in.TeamName,
				DriverCIN:      in.DriverCIN,
				TransporterCIN: in.TransporterCIN,
				AssignedBy:     actor.Descriptor(),
				AssignedAt:     now,
			}
			label := in.TeamName
			cur.TeamAssigned = &label
			return cur, fmt.Sprintf("Assigned team: %s (Chauffeur: %s, Transporteur: %s)", in.TeamName, in.DriverCIN, in.TransporterCIN)
		})
}

// Dispatch records that an assigned request left with its escort.
func (e *Engine) Dispatch(ctx context.Context, p *authz.Principal, id string, in DispatchInput) (request.FundRequest, error) {
	by := strings.TrimSpace(in.DispatchedBy)
	return e.transition(ctx, p, id, TransitionDispatch, nil,
		func(cur request.FundRequest, actor authz.Principal, now time.Time) (request.FundRequest, string) {
			if by == "" {
				by = actor.Name
			}
			at := now
			cur.DispatchedBy = &by
			cur.DispatchedAt = &at
			return cur, "Dispatched by " + by
		})
}

// ConfirmReceipt closes the delivery on behalf of the receiving agency. The
// actor's password is re-verified after the agency scope check and before
// the transition is evaluated.
func (e *Engine) ConfirmReceipt(ctx context.Context, p *authz.Principal, id string, in ReceiptInput) (request.FundRequest, error) {
	in.ReceivedBy = strings.TrimSpace(in.ReceivedBy)
	in.NonComplianceDetails = strings.TrimSpace(in.NonComplianceDetails)
	if in.NonCompliance == "" {
		in.NonCompliance = request.NonComplianceNo
	}
	if err := e.precheck(p, TransitionConfirmReceipt, func() error {
		if in.ReceivedBy == "" {
			return apperr.Validation("receivedBy", "receivedBy is required")
		}
		if in.NonCompliance != request.NonComplianceYes && in.NonCompliance != request.NonComplianceNo {
			return apperr.Validation("nonCompliance", "nonCompliance must be YES or NO")
		}
		if in.NonCompliance == request.NonComplianceYes && in.NonComplianceDetails == "" {
			return apperr.Validation("nonComplianceDetails", "nonComplianceDetails is required when nonCompliance is YES")
		}
		return nil
	}); err != nil {
		return request.FundRequest{}, err
	}

	verify := func(ctx context.Context, actor authz.Principal) error {
		return e.passwords.VerifyPassword(ctx, actor.ID, in.Password)
	}
	return e.transition(ctx, p, id, TransitionConfirmReceipt, verify,
		func(cur request.FundRequest, _ authz.Principal, now time.Time) (request.FundRequest, string) {
			at := now
			cur.ReceivedBy = &in.ReceivedBy
			cur.ReceivedAt = &at
			cur.NonCompliance = in.NonCompliance
			if in.NonCompliance == request.NonComplianceYes {
				details := in.NonComplianceDetails
				cur.NonComplianceDetails = &details
				return cur, "Received with non-compliance: " + details
			}
			cur.NonComplianceDetails = nil
			return cur, "Received by " + in.ReceivedBy
		})
}

// precheck runs the role gate and payload validation before anything is
// loaded, so malformed payloads never reach the store.
func (e *Engine) precheck(p *authz.Principal, t Transition, validate func() error) error {
	if _, err := authz.Authorize(p, steps[t].action); err != nil {
		return err
	}
	return validate()
}

type applyFunc func(cur request.FundRequest, actor authz.Principal, now time.Time) (request.FundRequest, string)

func (e *Engine) transition(
	ctx context.Context,
	p *authz.Principal,
	id string,
	t Transition,
	verify func(context.Context, authz.Principal) error,
	apply applyFunc,
) (request.FundRequest, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+string(t),
		trace.WithAttributes(attribute.String("request.id", id), attribute.String("lifecycle.transition", string(t))))
	defer span.End()
	start := time.Now()

	var from request.Status
	next, err := e.run(ctx, p, id, t, verify, apply, &from)
	e.finish(span, string(t), start, err)
	if err != nil {
		return request.FundRequest{}, err
	}

	span.SetAttributes(attribute.String("lifecycle.to", string(next.Status)))
	e.logger.Info("request transitioned", "request_id", next.ID, "transition", string(t),
		"from", string(from), "to", string(next.Status), "actor_id", p.ID)
	e.publish(ctx, steps[t].event, next, p.Descriptor())
	return next, nil
}

func (e *Engine) run(
	ctx context.Context,
	p *authz.Principal,
	id string,
	t Transition,
	verify func(context.Context, authz.Principal) error,
	apply applyFunc,
	from *request.Status,
) (request.FundRequest, error) {
	s := steps[t]
	if _, err := authz.Authorize(p, s.action); err != nil {
		return request.FundRequest{}, err
	}
	current, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return request.FundRequest{}, err
	}
	actor, err := authz.AuthorizeResource(p, s.action, current.AgencyID)
	if err != nil {
		return request.FundRequest{}, err
	}
	if verify != nil {
		if err := verify(ctx, actor); err != nil {
			return request.FundRequest{}, err
		}
	}

	return e.repo.Transition(ctx, id, func(cur request.FundRequest) (request.FundRequest, audit.Entry, error) {
		if err := Check(cur.Status, t); err != nil {
			return request.FundRequest{}, audit.Entry{}, err
		}
		*from = cur.Status
		now := e.now().UTC()
		next, details := apply(cur, actor, now)
		next.Status = Target(t, next.NonCompliance)
		next.UpdatedAt = now
		return next, audit.NewEntry(cur.ID, s.audit, &actor, details, now), nil
	})
}

func (e *Engine) finish(span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		if kind == apperr.KindPersistence {
			e.logger.Error("lifecycle operation failed", "operation", op, "error", err)
		} else {
			e.logger.Debug("lifecycle operation refused", "operation", op, "kind", string(kind), "error", err.Error())
		}
	}
	telemetry.ObserveTransition(op, outcome, time.Since(start))
}

// publish is best effort: the transition is already committed.
func (e *Engine) publish(ctx context.Context, kind string, req request.FundRequest, actor string) {
	msg := notification.Message{
		Kind:       kind,
		RequestID:  req.ID,
		AgencyID:   req.AgencyID,
		Status:     string(req.Status),
		Actor:      actor,
		Body:       fmt.Sprintf("%s request %s is now %s", req.Type, req.ID, req.Status),
		OccurredAt: req.UpdatedAt,
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("lifecycle notification failed", "request_id", req.ID, "kind", kind, "error", err)
	}
}
