package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// Repository provides timeline reads over audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, cond *tenancy.Condition, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, cond *tenancy.Condition, filters TimelineFilters) ([]TimelineRow, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a new audit timeline service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Timeline fetches audit entries with paging. Non-administrators only see
// their own school's entries.
func (s *Service) Timeline(ctx context.Context, actor authz.Principal, filters TimelineFilters) (Result, error) {
	cond, err := s.scope(actor)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, cond, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// ExportCSV streams the full filtered timeline as CSV.
func (s *Service) ExportCSV(ctx context.Context, actor authz.Principal, filters TimelineFilters) ([]byte, error) {
	cond, err := s.scope(actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.TimelineAll(ctx, cond, filters)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"at", "actor_id", "school_id", "action", "entity", "entity_id"}); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		school := ""
		if row.SchoolID != uuid.Nil {
			school = row.SchoolID.String()
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorID.String(),
			school,
			row.Action,
			row.Entity,
			row.EntityID,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Purge removes audit entries older than the retention window. Used by the
// background retention job.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("audit: retention must be positive")
	}
	return s.repo.DeleteBefore(ctx, time.Now().Add(-retention))
}

func (s *Service) scope(actor authz.Principal) (*tenancy.Condition, error) {
	d := authz.Resolve(actor.Role, authz.PermAuditView)
	if !d.Allowed {
		return nil, &authz.DeniedError{Reason: d.Reason}
	}
	guard := tenancy.NewGuard(actor, s.logger)
	cond := tenancy.NewCondition()
	guard.ApplySchoolFilter(cond, "audit_logs")
	return cond, nil
}
