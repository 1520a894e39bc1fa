package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgrid/campusgrid/internal/tenancy"
)

const feeColumns = `id, school_id, student_id, term, title, amount_due, amount_paid, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for fee balances.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new fee balance.
func (r *Repository) Create(ctx context.Context, f FeeBalance) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO fee_balances (id, school_id, student_id, term, title, amount_due, amount_paid)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.SchoolID, f.StudentID, f.Term, f.Title, f.AmountDue, f.AmountPaid)
	if err != nil {
		return fmt.Errorf("fees: create: %w", err)
	}
	return nil
}

// Get returns one fee balance by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (FeeBalance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+feeColumns+` FROM fee_balances WHERE id = $1`, id)
	f, err := scanFee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FeeBalance{}, ErrNotFound
		}
		return FeeBalance{}, fmt.Errorf("fees: get: %w", err)
	}
	return f, nil
}

// List returns fee balances matching the tenant condition plus optional
// student and term filters.
func (r *Repository) List(ctx context.Context, cond *tenancy.Condition, studentID uuid.UUID, term string) ([]FeeBalance, error) {
	if cond == nil {
		cond = tenancy.NewCondition()
	}
	if studentID != uuid.Nil {
		cond.WithEqualityFilter("student_id", studentID)
	}
	if term != "" {
		cond.WithEqualityFilter("term", term)
	}
	if cond.Impossible() {
		return []FeeBalance{}, nil
	}
	where, args := cond.SQL(1)
	query := fmt.Sprintf(`SELECT %s FROM fee_balances WHERE %s ORDER BY term DESC, created_at DESC`, feeColumns, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fees: list: %w", err)
	}
	defer rows.Close()
	out := make([]FeeBalance, 0)
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, fmt.Errorf("fees: scan: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fees: rows: %w", err)
	}
	return out, nil
}

// AddPayment increments amount_paid, refusing overpayment at the database so
// concurrent payments cannot exceed the amount due.
func (r *Repository) AddPayment(ctx context.Context, id uuid.UUID, amount int64) (FeeBalance, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE fee_balances
SET amount_paid = amount_paid + $2, updated_at = NOW()
WHERE id = $1 AND amount_paid + $2 <= amount_due
RETURNING `+feeColumns, id, amount)
	f, err := scanFee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return FeeBalance{}, getErr
			}
			return FeeBalance{}, ErrOverpayment
		}
		return FeeBalance{}, fmt.Errorf("fees: add payment: %w", err)
	}
	return f, nil
}

func scanFee(row pgx.Row) (FeeBalance, error) {
	var f FeeBalance
	err := row.Scan(&f.ID, &f.SchoolID, &f.StudentID, &f.Term, &f.Title, &f.AmountDue, &f.AmountPaid, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}
