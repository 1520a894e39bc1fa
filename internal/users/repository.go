package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

const userColumns = `id, email, name, password_hash, role, school_id, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, email, name, password_hash, role, school_id, is_active)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, '00000000-0000-0000-0000-000000000000'::uuid), $7)
RETURNING `+userColumns,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.SchoolID, u.IsActive,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return created, nil
}

// Get returns a user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// List returns users matching the tenant condition, newest first.
func (r *Repository) List(ctx context.Context, cond *tenancy.Condition, limit, offset int) ([]User, error) {
	if cond == nil {
		cond = tenancy.NewCondition()
	}
	if cond.Impossible() {
		return []User{}, nil
	}
	where, args := cond.SQL(1)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// UpdateRole changes the role and school assignment of a user.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role string, schoolID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET role = $2,
    school_id = NULLIF($3, '00000000-0000-0000-0000-000000000000'::uuid),
    updated_at = NOW()
WHERE id = $1`, id, role, schoolID)
	if err != nil {
		return fmt.Errorf("users: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive toggles account activation.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("users: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u        User
		role     string
		schoolID *uuid.UUID
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &schoolID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role = authz.ParseRole(role)
	if schoolID != nil {
		u.SchoolID = *schoolID
	}
	return u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	return users, nil
}
