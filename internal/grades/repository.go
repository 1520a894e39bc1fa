package grades

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgrid/campusgrid/internal/platform/db"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const gradeColumns = `id, school_id, class_id, subject_id, student_id, teacher_id, term, score, max_score, status, comment, created_at, updated_at`

// Get returns one grade record.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (GradeRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+gradeColumns+` FROM grade_records WHERE id=$1`, id)
	rec, err := scanGrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GradeRecord{}, ErrNotFound
		}
		return GradeRecord{}, err
	}
	return rec, nil
}

// GetMany returns the records matching ids; missing ids are simply absent.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) ([]GradeRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+gradeColumns+` FROM grade_records WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrades(rows)
}

// List returns records matching the filter, narrowed by the tenant condition.
func (r *Repository) List(ctx context.Context, filter ListFilter, cond *tenancy.Condition) ([]GradeRecord, error) {
	if cond == nil {
		cond = tenancy.NewCondition()
	}
	if filter.ClassID != uuid.Nil {
		cond.WithEqualityFilter("class_id", filter.ClassID)
	}
	if filter.StudentID != uuid.Nil {
		cond.WithEqualityFilter("student_id", filter.StudentID)
	}
	if filter.Status != "" {
		cond.WithEqualityFilter("status", string(filter.Status))
	}
	if cond.Impossible() {
		return nil, nil
	}
	where, args := cond.SQL(1)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM grade_records WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		gradeColumns, where, limit, max(filter.Offset, 0))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrades(rows)
}

func (t *txRepo) Insert(ctx context.Context, rec GradeRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO grade_records
(id, school_id, class_id, subject_id, student_id, teacher_id, term, score, max_score, status, comment, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`,
		rec.ID, rec.SchoolID, rec.ClassID, rec.SubjectID, rec.StudentID, rec.TeacherID,
		rec.Term, rec.Score, rec.MaxScore, string(rec.Status), rec.Comment)
	return err
}

func (t *txRepo) UpdateContent(ctx context.Context, id uuid.UUID, score float64, comment string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE grade_records SET score=$2, comment=$3, updated_at=NOW() WHERE id=$1`, id, score, comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status GradeStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE grade_records SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanGrade(row pgx.Row) (GradeRecord, error) {
	var rec GradeRecord
	var status string
	if err := row.Scan(&rec.ID, &rec.SchoolID, &rec.ClassID, &rec.SubjectID, &rec.StudentID, &rec.TeacherID,
		&rec.Term, &rec.Score, &rec.MaxScore, &status, &rec.Comment, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return GradeRecord{}, err
	}
	rec.Status = GradeStatus(status)
	return rec, nil
}

func collectGrades(rows pgx.Rows) ([]GradeRecord, error) {
	var records []GradeRecord
	for rows.Next() {
		rec, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
