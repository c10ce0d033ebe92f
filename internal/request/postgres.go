package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// PostgresRepository stores requests in PostgreSQL. Transitions lock the
// request row with SELECT ... FOR UPDATE and additionally guard the update
// with the version column.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectRequest = `
        SELECT r.id, r.request_type, r.status, r.total_amount::text, r.currency, r.description,
               r.team_assigned, r.dispatched_by, r.dispatched_at, r.received_by, r.received_at,
               r.non_compliance, r.non_compliance_details, r.agency_id, r.user_id,
               a.name, a.code, u.first_name || ' ' || u.last_name,
               r.version, r.created_at, r.updated_at,
               t.id, t.team_name, t.cin_chauffeur, t.cin_transporteur, t.assigned_by, t.created_at
        FROM fund_requests r
        INNER JOIN agencies a ON a.id = r.agency_id
        INNER JOIN users u ON u.id = r.user_id
        LEFT JOIN security_teams t ON t.id = r.security_team_id`

var sortColumns = map[SortKey]string{
	SortCreatedAt:   "r.created_at",
	SortTotalAmount: "r.total_amount",
	SortStatus:      "r.status",
	SortAgency:      "a.name",
}

// FindByID loads a request with its lines and team.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (FundRequest, error) {
	return r.load(ctx, r.db, id, false)
}

func (r *PostgresRepository) load(ctx context.Context, q queryer, id string, forUpdate bool) (FundRequest, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return FundRequest{}, apperr.New(apperr.KindNotFound, "request not found")
	}
	query := selectRequest + ` WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}
	req, err := scanRequest(q.QueryRow(ctx, query, reqID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FundRequest{}, apperr.New(apperr.KindNotFound, "request not found")
		}
		return FundRequest{}, apperr.Persistence("load request", err)
	}
	lines, err := loadLines(ctx, q, reqID)
	if err != nil {
		return FundRequest{}, err
	}
	req.Lines = lines
	return req, nil
}

// CreateWithLines inserts the request, its lines and the creation entry in
// one transaction.
func (r *PostgresRepository) CreateWithLines(ctx context.Context, req FundRequest, entry audit.Entry) (FundRequest, error) {
	reqID, err := uuid.Parse(req.ID)
	if err != nil {
		return FundRequest{}, fmt.Errorf("request id: %w", err)
	}
	agencyID, err := uuid.Parse(req.AgencyID)
	if err != nil {
		return FundRequest{}, apperr.Validation("agencyId", "principal has no valid agency")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return FundRequest{}, apperr.Validation("userId", "principal has no valid user id")
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FundRequest{}, apperr.Persistence("begin create request", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO fund_requests
        (id, request_type, status, total_amount, currency, description, agency_id, user_id, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, 1, $9, $10)`,
		reqID, string(req.Type), string(req.Status), req.TotalAmount.String(), req.Currency, req.Description,
		agencyID, userID, req.CreatedAt.UTC(), req.UpdatedAt.UTC()); err != nil {
		return FundRequest{}, mapWriteError("insert request", err)
	}

	batch := &pgx.Batch{}
	for _, line := range req.Lines {
		batch.Queue(`INSERT INTO denomination_details (id, request_id, denomination_type, denomination, quantity, total_value)
            VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric)`,
			uuid.New(), reqID, string(line.Type), line.Denomination.String(), line.Quantity, line.TotalValue.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return FundRequest{}, mapWriteError("insert denomination lines", err)
	}

	if err := audit.Append(ctx, tx, entry); err != nil {
		return FundRequest{}, apperr.Persistence("append audit entry", err)
	}
	created, err := r.load(ctx, tx, req.ID, false)
	if err != nil {
		return FundRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FundRequest{}, apperr.Persistence("commit create request", err)
	}
	return created, nil
}

// Transition locks the request row, applies mutate and writes the new
// state together with the audit entry.
func (r *PostgresRepository) Transition(ctx context.Context, id string, mutate Mutation) (FundRequest, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FundRequest{}, apperr.Persistence("begin transition", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := r.load(ctx, tx, id, true)
	if err != nil {
		return FundRequest{}, err
	}
	next, entry, err := mutate(current)
	if err != nil {
		return FundRequest{}, err
	}

	var teamID *uuid.UUID
	if next.Team != nil {
		parsed, err := uuid.Parse(next.Team.ID)
		if err != nil {
			return FundRequest{}, fmt.Errorf("team id: %w", err)
		}
		teamID = &parsed
		if current.Team == nil || current.Team.ID != next.Team.ID {
			if _, err := tx.Exec(ctx, `INSERT INTO security_teams (id, team_name, cin_chauffeur, cin_transporteur, assigned_by, created_at)
                VALUES ($1, $2, $3, $4, $5, $6)`,
				parsed, next.Team.TeamName, next.Team.DriverCIN, next.Team.TransporterCIN, next.Team.AssignedBy, next.Team.AssignedAt.UTC()); err != nil {
				return FundRequest{}, mapWriteError("insert security team", err)
			}
		}
	}

	var nonCompliance *string
	if next.NonCompliance != "" {
		v := string(next.NonCompliance)
		nonCompliance = &v
	}
	cmd, err := tx.Exec(ctx, `UPDATE fund_requests SET
            status = $1, description = $2, security_team_id = $3, team_assigned = $4,
            dispatched_by = $5, dispatched_at = $6, received_by = $7, received_at = $8,
            non_compliance = $9, non_compliance_details = $10,
            version = version + 1, updated_at = $11
        WHERE id = $12 AND version = $13`,
		string(next.Status), next.Description, teamID, next.TeamAssigned,
		next.DispatchedBy, utcPtr(next.DispatchedAt), next.ReceivedBy, utcPtr(next.ReceivedAt),
		nonCompliance, next.NonComplianceDetails, next.UpdatedAt.UTC(),
		uuid.MustParse(current.ID), current.Version)
	if err != nil {
		return FundRequest{}, mapWriteError("update request", err)
	}
	if cmd.RowsAffected() == 0 {
		return FundRequest{}, apperr.WithMetadata(apperr.KindInvalidStateTransition, "request changed concurrently",
			map[string]string{"current": string(current.Status), "attempted": string(next.Status)})
	}

	if err := audit.Append(ctx, tx, entry); err != nil {
		return FundRequest{}, apperr.Persistence("append audit entry", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return FundRequest{}, apperr.Persistence("commit transition", err)
	}

	next.Version = current.Version + 1
	next.Lines = current.Lines
	return next, nil
}

// FindMany runs a filtered, sorted and paged query.
func (r *PostgresRepository) FindMany(ctx context.Context, filter Filter, order Sort, page pagination.Request) ([]FundRequest, int, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM fund_requests r
        INNER JOIN agencies a ON a.id = r.agency_id
        INNER JOIN users u ON u.id = r.user_id` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count requests", err)
	}

	column, ok := sortColumns[order.Key]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	direction := "ASC"
	if order.Desc {
		direction = "DESC"
	}
	query := fmt.Sprintf(`%s%s ORDER BY %s %s, r.id %s LIMIT $%d OFFSET $%d`,
		selectRequest, where, column, direction, direction, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, apperr.Persistence("list requests", err)
	}
	defer rows.Close()

	out := make([]FundRequest, 0, page.Limit)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("scan request", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("iterate requests", err)
	}
	return out, total, nil
}

// Summarize groups matching requests by status.
func (r *PostgresRepository) Summarize(ctx context.Context, filter Filter) ([]StatusTotal, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT r.status, COUNT(*), COALESCE(SUM(r.total_amount), 0)::text
        FROM fund_requests r
        INNER JOIN agencies a ON a.id = r.agency_id
        INNER JOIN users u ON u.id = r.user_id`+where+` GROUP BY r.status`, args...)
	if err != nil {
		return nil, apperr.Persistence("summarize requests", err)
	}
	defer rows.Close()

	byStatus := make(map[Status]StatusTotal)
	for rows.Next() {
		var (
			status, amount string
			count          int
		)
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return nil, apperr.Persistence("scan summary", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, apperr.Persistence("parse summary amount", err)
		}
		byStatus[Status(status)] = StatusTotal{Status: Status(status), Count: count, Amount: value}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("iterate summary", err)
	}
	out := make([]StatusTotal, 0, len(byStatus))
	for _, s := range Statuses {
		if t, ok := byStatus[s]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func buildWhere(filter Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.Statuses) > 0 {
		add("r.status = ANY($%d)", filter.statusStrings())
	}
	if filter.Type != "" {
		add("r.request_type = $%d", string(filter.Type))
	}
	if filter.AgencyID != "" {
		id, err := uuid.Parse(filter.AgencyID)
		if err != nil {
			return "", nil, apperr.Validation("agencyId", "agencyId must be a UUID")
		}
		add("r.agency_id = $%d", id)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, search)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(`(a.name ILIKE '%%' || $%[1]d || '%%' OR a.code ILIKE '%%' || $%[1]d || '%%'
            OR u.first_name ILIKE '%%' || $%[1]d || '%%' OR u.last_name ILIKE '%%' || $%[1]d || '%%')`, n))
	}
	if filter.DateFrom != nil {
		add("r.created_at >= $%d", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		add("r.created_at <= $%d", filter.DateTo.UTC())
	}
	if filter.MinAmount != nil {
		add("r.total_amount >= $%d::numeric", filter.MinAmount.String())
	}
	if filter.MaxAmount != nil {
		add("r.total_amount <= $%d::numeric", filter.MaxAmount.String())
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func scanRequest(row pgx.Row) (FundRequest, error) {
	var (
		req                     FundRequest
		id, agencyID, userID    uuid.UUID
		reqType, status, amount string
		nonCompliance           *string
		createdAt, updatedAt    time.Time
	)
	var (
		teamID                                  *uuid.UUID
		teamName, driver, transport, assignedBy *string
		teamCreated                             *time.Time
	)
	if err := row.Scan(&id, &reqType, &status, &amount, &req.Currency, &req.Description,
		&req.TeamAssigned, &req.DispatchedBy, &req.DispatchedAt, &req.ReceivedBy, &req.ReceivedAt,
		&nonCompliance, &req.NonComplianceDetails, &agencyID, &userID,
		&req.AgencyName, &req.AgencyCode, &req.RequesterName,
		&req.Version, &createdAt, &updatedAt,
		&teamID, &teamName, &driver, &transport, &assignedBy, &teamCreated); err != nil {
		return FundRequest{}, err
	}
	total, err := decimal.NewFromString(amount)
	if err != nil {
		return FundRequest{}, err
	}
	req.ID = id.String()
	req.Type = Type(reqType)
	req.Status = Status(status)
	req.TotalAmount = total
	req.AgencyID = agencyID.String()
	req.UserID = userID.String()
	req.CreatedAt = createdAt.UTC()
	req.UpdatedAt = updatedAt.UTC()
	req.DispatchedAt = utcPtr(req.DispatchedAt)
	req.ReceivedAt = utcPtr(req.ReceivedAt)
	if nonCompliance != nil {
		req.NonCompliance = NonCompliance(*nonCompliance)
	}
	if teamID != nil {
		req.Team = &TeamAssignment{
			ID:             teamID.String(),
			TeamName:       deref(teamName),
			DriverCIN:      deref(driver),
			TransporterCIN: deref(transport),
			AssignedBy:     deref(assignedBy),
		}
		if teamCreated != nil {
			req.Team.AssignedAt = teamCreated.UTC()
		}
	}
	return req, nil
}

func loadLines(ctx context.Context, q queryer, reqID uuid.UUID) ([]ledger.Line, error) {
	rows, err := q.Query(ctx, `SELECT denomination_type, denomination::text, quantity, total_value::text
        FROM denomination_details WHERE request_id = $1
        ORDER BY denomination_type, denomination DESC`, reqID)
	if err != nil {
		return nil, apperr.Persistence("load denomination lines", err)
	}
	defer rows.Close()
	var lines []ledger.Line
	for rows.Next() {
		var (
			kind, face, total string
			line              ledger.Line
		)
		if err := rows.Scan(&kind, &face, &line.Quantity, &total); err != nil {
			return nil, apperr.Persistence("scan denomination line", err)
		}
		line.Type = ledger.DenominationType(kind)
		if line.Denomination, err = decimal.NewFromString(face); err != nil {
			return nil, apperr.Persistence("parse denomination", err)
		}
		if line.TotalValue, err = decimal.NewFromString(total); err != nil {
			return nil, apperr.Persistence("parse line total", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("iterate denomination lines", err)
	}
	return lines, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.KindConflict, "request already exists", err)
		case "23503":
			return apperr.Wrap(apperr.KindValidation, "referenced agency or user does not exist", err)
		}
	}
	return apperr.Persistence(op, err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
