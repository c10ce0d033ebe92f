package lifecycle

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
	"github.com/rayenfassatoui/amen-bank/internal/request"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

// Handler exposes the fund request endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs the request HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type createRequest struct {
	RequestType         string          `json:"requestType"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	Currency            string          `json:"currency"`
	Description         string          `json:"description"`
	DenominationDetails []ledger.Line   `json:"denominationDetails"`
}

// Create submits a new request.
func (h *Handler) Create(c *fiber.Ctx) error {
	var body createRequest
	if err := c.BodyParser(&body); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	req, err := h.engine.Create(c.UserContext(), middleware.PrincipalFrom(c), CreateInput{
		Type:        request.Type(strings.ToUpper(body.RequestType)),
		TotalAmount: body.TotalAmount,
		Currency:    body.Currency,
		Description: body.Description,
		Lines:       body.DenominationDetails,
	})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusCreated, "Request created successfully", req)
}

// Get returns one request with its audit trail.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.engine.Get(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return respond.OK(c, req)
}

// List returns a filtered page of requests.
func (h *Handler) List(c *fiber.Ctx) error {
	q, err := parseListQuery(c)
	if err != nil {
		return err
	}
	res, err := h.engine.List(c.UserContext(), middleware.PrincipalFrom(c), q)
	if err != nil {
		return err
	}
	return respond.Page(c, res.Requests, res.Pagination)
}

// Summary returns per-status counts and amounts.
func (h *Handler) Summary(c *fiber.Ctx) error {
	q, err := parseListQuery(c)
	if err != nil {
		return err
	}
	sum, err := h.engine.Summary(c.UserContext(), middleware.PrincipalFrom(c), q.Filter)
	if err != nil {
		return err
	}
	return respond.OK(c, sum)
}

// Validate approves a submitted request.
func (h *Handler) Validate(c *fiber.Ctx) error {
	req, err := h.engine.Validate(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Request validated successfully", req)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject refuses a submitted request.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var body rejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperr.New(apperr.KindValidation, "invalid request body")
		}
	}
	req, err := h.engine.Reject(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), RejectInput{Reason: body.Reason})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Request rejected successfully", req)
}

type assignTeamRequest struct {
	TeamName        string `json:"teamName"`
	CINChauffeur    string `json:"cinChauffeur"`
	CINTransporteur string `json:"cinTransporteur"`
}

// AssignTeam binds an escort team.
func (h *Handler) AssignTeam(c *fiber.Ctx) error {
	var body assignTeamRequest
	if err := c.BodyParser(&body); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	req, err := h.engine.AssignTeam(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), AssignTeamInput{
		TeamName:       body.TeamName,
		DriverCIN:      body.CINChauffeur,
		TransporterCIN: body.CINTransporteur,
	})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Team assigned successfully", req)
}

type dispatchRequest struct {
	DispatchedBy string `json:"dispatchedBy"`
}

// Dispatch marks an assigned request as sent.
func (h *Handler) Dispatch(c *fiber.Ctx) error {
	var body dispatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperr.New(apperr.KindValidation, "invalid request body")
		}
	}
	req, err := h.engine.Dispatch(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), DispatchInput{DispatchedBy: body.DispatchedBy})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Request dispatched successfully", req)
}

type receiveRequest struct {
	ReceivedBy           string `json:"receivedBy"`
	NonCompliance        string `json:"nonCompliance"`
	NonComplianceDetails string `json:"nonComplianceDetails"`
	Password             string `json:"password"`
}

// Receive confirms delivery on behalf of the receiving agency.
func (h *Handler) Receive(c *fiber.Ctx) error {
	var body receiveRequest
	if err := c.BodyParser(&body); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	req, err := h.engine.ConfirmReceipt(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), ReceiptInput{
		ReceivedBy:           body.ReceivedBy,
		NonCompliance:        request.NonCompliance(strings.ToUpper(body.NonCompliance)),
		NonComplianceDetails: body.NonComplianceDetails,
		Password:             body.Password,
	})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Request received successfully", req)
}

func parseListQuery(c *fiber.Ctx) (ListQuery, error) {
	var q ListQuery
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, ok := request.ParseStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !ok {
				return q, apperr.Validation("status", "unknown status "+part)
			}
			q.Filter.Statuses = append(q.Filter.Statuses, s)
		}
	}
	if raw := c.Query("requestType"); raw != "" {
		t := request.Type(strings.ToUpper(raw))
		if !t.Valid() {
			return q, apperr.Validation("requestType", "requestType must be PROVISIONNEMENT or VERSEMENT")
		}
		q.Filter.Type = t
	}
	q.Filter.AgencyID = c.Query("agencyId")
	q.Filter.Search = c.Query("search")

	var err error
	if q.Filter.DateFrom, err = parseDate(c.Query("dateFrom"), "dateFrom", false); err != nil {
		return q, err
	}
	if q.Filter.DateTo, err = parseDate(c.Query("dateTo"), "dateTo", true); err != nil {
		return q, err
	}
	if q.Filter.MinAmount, err = parseAmount(c.Query("minAmount"), "minAmount"); err != nil {
		return q, err
	}
	if q.Filter.MaxAmount, err = parseAmount(c.Query("maxAmount"), "maxAmount"); err != nil {
		return q, err
	}

	q.Sort = request.Sort{
		Key:  request.ParseSortKey(c.Query("sortBy")),
		Desc: !strings.EqualFold(c.Query("sortOrder"), "asc"),
	}
	q.Page = pagination.Request{Page: atoi(c.Query("page")), Limit: atoi(c.Query("limit"))}
	return q, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain dateTo
// covers the whole day.
func parseDate(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperr.Validation(field, field+" must be a date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseAmount(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Validation(field, field+" must be a number")
	}
	return &d, nil
}

func atoi(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}
