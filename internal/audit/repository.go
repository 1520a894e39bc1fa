package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// PGRepository implements Repository over audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a page of timeline rows, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, cond *tenancy.Condition, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	cond = applyFilters(cond, filters)
	if cond.Impossible() {
		return []TimelineRow{}, nil
	}
	where, args := cond.SQL(1)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
SELECT occurred_at, actor_id, school_id, action, entity, entity_id, meta
FROM audit_logs
WHERE %s
ORDER BY occurred_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	return r.query(ctx, query, args)
}

// TimelineAll returns every matching timeline row, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, cond *tenancy.Condition, filters TimelineFilters) ([]TimelineRow, error) {
	cond = applyFilters(cond, filters)
	if cond.Impossible() {
		return []TimelineRow{}, nil
	}
	where, args := cond.SQL(1)
	query := fmt.Sprintf(`
SELECT occurred_at, actor_id, school_id, action, entity, entity_id, meta
FROM audit_logs
WHERE %s
ORDER BY occurred_at DESC`, where)
	return r.query(ctx, query, args)
}

// DeleteBefore removes entries older than cutoff.
func (r *PGRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: delete before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func applyFilters(cond *tenancy.Condition, filters TimelineFilters) *tenancy.Condition {
	if cond == nil {
		cond = tenancy.NewCondition()
	}
	if filters.SchoolID != uuid.Nil {
		cond.WithEqualityFilter("school_id", filters.SchoolID)
	}
	if filters.ActorID != uuid.Nil {
		cond.WithEqualityFilter("actor_id", filters.ActorID)
	}
	if filters.Entity != "" {
		cond.WithEqualityFilter("entity", filters.Entity)
	}
	if filters.Action != "" {
		cond.WithEqualityFilter("action", filters.Action)
	}
	if !filters.From.IsZero() {
		cond.WithRangeFilter("occurred_at", ">=", filters.From)
	}
	if !filters.To.IsZero() {
		cond.WithRangeFilter("occurred_at", "<=", filters.To)
	}
	return cond
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()
	out := make([]TimelineRow, 0)
	for rows.Next() {
		row, err := scanTimelineRow(rows)
		if err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}

func scanTimelineRow(rows pgx.Rows) (TimelineRow, error) {
	var (
		row      TimelineRow
		schoolID *uuid.UUID
		meta     map[string]any
	)
	if err := rows.Scan(&row.At, &row.ActorID, &schoolID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
		return TimelineRow{}, err
	}
	if schoolID != nil {
		row.SchoolID = *schoolID
	}
	row.Meta = meta
	return row, nil
}

var _ Repository = (*PGRepository)(nil)
