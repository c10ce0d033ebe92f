package agency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed agency repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new agency.
func (r *PostgresRepository) Create(ctx context.Context, a Agency) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO agencies (id, name, code, city, address, phone, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, a.Name, a.Code, a.City, a.Address, a.Phone, a.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Wrap(apperr.KindConflict, "agency code already exists", err)
	}
	if err != nil {
		return apperr.Persistence("insert agency", err)
	}
	return nil
}

// FindByID fetches an agency by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Agency, error) {
	agencyID, err := uuid.Parse(id)
	if err != nil {
		return Agency{}, apperr.New(apperr.KindNotFound, "agency not found")
	}
	a, err := scanAgency(r.db.QueryRow(ctx, `SELECT id, name, code, city, address, phone, created_at
        FROM agencies WHERE id = $1`, agencyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agency{}, apperr.New(apperr.KindNotFound, "agency not found")
	}
	if err != nil {
		return Agency{}, apperr.Persistence("load agency", err)
	}
	return a, nil
}

// List returns all agencies ordered by code.
func (r *PostgresRepository) List(ctx context.Context) ([]Agency, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, code, city, address, phone, created_at
        FROM agencies ORDER BY code`)
	if err != nil {
		return nil, apperr.Persistence("list agencies", err)
	}
	defer rows.Close()
	var out []Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, apperr.Persistence("scan agency", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("iterate agencies", err)
	}
	return out, nil
}

func scanAgency(row pgx.Row) (Agency, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		a         Agency
	)
	if err := row.Scan(&id, &a.Name, &a.Code, &a.City, &a.Address, &a.Phone, &createdAt); err != nil {
		return Agency{}, err
	}
	a.ID = id.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
