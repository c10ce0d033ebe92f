package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes e using the caller's transaction so the entry commits or
// rolls back together with the mutation it records.
func Append(ctx context.Context, db Execer, e Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("audit entry id: %w", err)
	}
	requestID, err := uuid.Parse(e.RequestID)
	if err != nil {
		return fmt.Errorf("audit request id: %w", err)
	}
	var userID *uuid.UUID
	if e.UserID != nil {
		parsed, err := uuid.Parse(*e.UserID)
		if err != nil {
			return fmt.Errorf("audit user id: %w", err)
		}
		userID = &parsed
	}
	_, err = db.Exec(ctx, `INSERT INTO action_logs (id, action, performed_by, user_id, request_id, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(e.Action), e.PerformedBy, userID, requestID, e.Details, e.CreatedAt.UTC())
	return err
}

// PostgresStore reads audit entries from PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed audit reader.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, action, performed_by, user_id, request_id, details, created_at`

// ListByRequest returns the trail for one request, oldest first.
func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	id, err := uuid.Parse(requestID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM action_logs
        WHERE request_id = $1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, apperr.Persistence("list audit entries", err)
	}
	return collectEntries(rows)
}

// List runs the cross-request audit query, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter, page pagination.Request) ([]Entry, int, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		id, err := uuid.Parse(filter.UserID)
		if err != nil {
			return nil, 0, apperr.Validation("userId", "userId must be a UUID")
		}
		add("user_id = $%d", id)
	}
	if filter.RequestID != "" {
		id, err := uuid.Parse(filter.RequestID)
		if err != nil {
			return nil, 0, apperr.Validation("requestId", "requestId must be a UUID")
		}
		add("request_id = $%d", id)
	}
	if filter.Action != "" {
		add("action ILIKE '%%' || $%d || '%%'", filter.Action)
	}
	if filter.From != nil {
		add("created_at >= $%d", filter.From.UTC())
	}
	if filter.To != nil {
		add("created_at <= $%d", filter.To.UTC())
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM action_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count audit entries", err)
	}

	limitArgs := append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM action_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, limitArgs...)
	if err != nil {
		return nil, 0, apperr.Persistence("list audit entries", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			id, requestID uuid.UUID
			userID        *uuid.UUID
			action        string
			createdAt     time.Time
			e             Entry
		)
		if err := rows.Scan(&id, &action, &e.PerformedBy, &userID, &requestID, &e.Details, &createdAt); err != nil {
			return nil, apperr.Persistence("scan audit entry", err)
		}
		e.ID = id.String()
		e.Action = Action(action)
		e.RequestID = requestID.String()
		e.CreatedAt = createdAt.UTC()
		if userID != nil {
			s := userID.String()
			e.UserID = &s
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("iterate audit entries", err)
	}
	return out, nil
}
