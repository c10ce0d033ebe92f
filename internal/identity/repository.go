package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user User) error
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

var errUserNotFound = apperr.New(apperr.KindNotFound, "user not found")

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, agency_id,
        is_active, token_version, created_at, updated_at, last_login`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	agencyID, err := uuid.Parse(user.AgencyID)
	if err != nil {
		return apperr.Validation("agencyId", "agencyId must be a UUID")
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, string(user.Role), agencyID,
		user.IsActive, user.TokenVersion, user.CreatedAt.UTC(), user.UpdatedAt.UTC(), user.LastLogin)
	return mapWriteError("insert user", err)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, errUserNotFound
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, strings.ToLower(email))
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, errUserNotFound
	}
	if err != nil {
		return User{}, apperr.Persistence("load user", err)
	}
	return user, nil
}

// List returns all users ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Persistence("list users", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Persistence("scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("iterate users", err)
	}
	return out, nil
}

// Update stores the mutable profile fields of user.
func (r *PostgresRepository) Update(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return errUserNotFound
	}
	agencyID, err := uuid.Parse(user.AgencyID)
	if err != nil {
		return apperr.Validation("agencyId", "agencyId must be a UUID")
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1, first_name = $2, last_name = $3, phone = $4,
        role = $5, agency_id = $6, is_active = $7, updated_at = $8 WHERE id = $9`,
		user.PasswordHash, user.FirstName, user.LastName, user.Phone, string(user.Role), agencyID,
		user.IsActive, user.UpdatedAt.UTC(), userID)
	if err != nil {
		return mapWriteError("update user", err)
	}
	if cmd.RowsAffected() == 0 {
		return errUserNotFound
	}
	return nil
}

// IncrementTokenVersion invalidates outstanding tokens for the user.
func (r *PostgresRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, errUserNotFound
	}
	var ver int
	err = r.db.QueryRow(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`, userID).Scan(&ver)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errUserNotFound
	}
	if err != nil {
		return 0, apperr.Persistence("bump token version", err)
	}
	return ver, nil
}

// TouchLastLogin records a successful login.
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return errUserNotFound
	}
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), userID); err != nil {
		return apperr.Persistence("touch last login", err)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id, agencyID         uuid.UUID
		role                 string
		createdAt, updatedAt time.Time
		lastLogin            *time.Time
		u                    User
	)
	if err := row.Scan(&id, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &role, &agencyID,
		&u.IsActive, &u.TokenVersion, &createdAt, &updatedAt, &lastLogin); err != nil {
		return User{}, err
	}
	u.ID = id.String()
	u.AgencyID = agencyID.String()
	u.Role = authz.Role(role)
	u.CreatedAt = createdAt.UTC()
	u.UpdatedAt = updatedAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		u.LastLogin = &t
	}
	return u, nil
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.KindConflict, "email already registered", err)
		case "23503":
			return apperr.Wrap(apperr.KindValidation, "agency does not exist", err)
		}
	}
	return apperr.Persistence(op, err)
}
