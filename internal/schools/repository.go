package schools

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schoolColumns = `id, name, address, owner_id, is_active, created_at, updated_at`

// Create inserts a new school.
func (r *Repository) Create(ctx context.Context, s School) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO schools (id, name, address, owner_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`, s.ID, s.Name, s.Address, s.OwnerID, s.IsActive)
	return err
}

// Get fetches a school by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (School, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+schoolColumns+` FROM schools WHERE id=$1`, id)
	s, err := scanSchool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return School{}, ErrNotFound
		}
		return School{}, err
	}
	return s, nil
}

// List returns all schools ordered by name.
func (r *Repository) List(ctx context.Context) ([]School, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+schoolColumns+` FROM schools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []School
	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive toggles a school's active flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE schools SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchool(row pgx.Row) (School, error) {
	var s School
	if err := row.Scan(&s.ID, &s.Name, &s.Address, &s.OwnerID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return School{}, err
	}
	return s, nil
}
