package audithttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/audit"
	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/platform/httpx"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, actor authz.Principal, filters audit.TimelineFilters) (audit.Result, error)
	ExportCSV(ctx context.Context, actor authz.Principal, filters audit.TimelineFilters) ([]byte, error)
}

// Handler serves the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	authz   authz.Middleware
	now     func() time.Time
}

// NewHandler builds a new audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw, now: time.Now}
}

type timelineEntry struct {
	At       string         `json:"at"`
	ActorID  uuid.UUID      `json:"actor_id"`
	SchoolID string         `json:"school_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), actor, filters)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	entries := make([]timelineEntry, 0, len(result.Rows))
	for _, row := range result.Rows {
		entries = append(entries, toEntry(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	csvBytes, err := h.service.ExportCSV(r.Context(), actor, filters)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func toEntry(row audit.TimelineRow) timelineEntry {
	entry := timelineEntry{
		At:       row.At.UTC().Format(time.RFC3339),
		ActorID:  row.ActorID,
		Action:   row.Action,
		Entity:   row.Entity,
		EntityID: row.EntityID,
		Meta:     row.Meta,
	}
	if row.SchoolID != uuid.Nil {
		entry.SchoolID = row.SchoolID.String()
	}
	return entry
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	now := h.now().UTC()
	q := r.URL.Query()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	filters := audit.TimelineFilters{
		From:     fromTime,
		To:       toTime.Add(24*time.Hour - time.Nanosecond),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     1,
		PageSize: defaultPageSize,
	}
	if raw := strings.TrimSpace(q.Get("actor_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "actor_id"}
		}
		filters.ActorID = id
	}
	if raw := strings.TrimSpace(q.Get("school_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "school_id"}
		}
		filters.SchoolID = id
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

type validationError struct {
	field string
}

func (e validationError) Error() string {
	return fmt.Sprintf("invalid filter %q", e.field)
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var ve validationError
	if errors.As(err, &ve) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", ve.Error())
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrAccessDenied), errors.Is(err, tenancy.ErrTenancyViolation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("audit handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
