package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campusgrid/campusgrid/internal/audit"
	"github.com/campusgrid/campusgrid/internal/authz"
)

type stubTimelineService struct {
	result      audit.Result
	csv         []byte
	lastActor   authz.Principal
	lastFilters audit.TimelineFilters
	err         error
}

func (s *stubTimelineService) Timeline(_ context.Context, actor authz.Principal, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastActor = actor
	s.lastFilters = filters
	return s.result, s.err
}

func (s *stubTimelineService) ExportCSV(_ context.Context, actor authz.Principal, filters audit.TimelineFilters) ([]byte, error) {
	s.lastActor = actor
	s.lastFilters = filters
	return s.csv, s.err
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
}

func newTestHandler(svc TimelineService) *Handler {
	h := NewHandler(nil, svc, authz.Middleware{})
	h.now = fixedNow
	return h
}

func requestAs(t *testing.T, actor authz.Principal, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(authz.ContextWithPrincipal(req.Context(), actor))
}

func TestHandleTimeline(t *testing.T) {
	school := uuid.New()
	row := audit.TimelineRow{
		At:       time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC),
		ActorID:  uuid.New(),
		SchoolID: school,
		Action:   "GRADE_RELEASE",
		Entity:   "grade_record",
		EntityID: uuid.NewString(),
		Meta:     map[string]any{"from": "APPROVED", "to": "RELEASED"},
	}
	svc := &stubTimelineService{result: audit.Result{
		Rows:   []audit.TimelineRow{row},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20, HasNext: false},
	}}
	h := newTestHandler(svc)

	actor := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: school}
	rec := httptest.NewRecorder()
	h.handleTimeline(rec, requestAs(t, actor, "/audit/?action=GRADE_RELEASE&page=2"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, actor, svc.lastActor)
	require.Equal(t, "GRADE_RELEASE", svc.lastFilters.Action)
	require.Equal(t, 2, svc.lastFilters.Page)

	var body struct {
		Entries []struct {
			At       string         `json:"at"`
			Action   string         `json:"action"`
			SchoolID string         `json:"school_id"`
			Meta     map[string]any `json:"meta"`
		} `json:"entries"`
		Paging struct {
			Page     int  `json:"page"`
			PageSize int  `json:"page_size"`
			HasNext  bool `json:"has_next"`
		} `json:"paging"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	require.Equal(t, "2026-08-14T10:30:00Z", body.Entries[0].At)
	require.Equal(t, school.String(), body.Entries[0].SchoolID)
	require.Equal(t, "RELEASED", body.Entries[0].Meta["to"])
	require.Equal(t, 1, body.Paging.Page)
	require.False(t, body.Paging.HasNext)
}

func TestHandleTimelineRequiresPrincipal(t *testing.T) {
	h := newTestHandler(&stubTimelineService{})
	rec := httptest.NewRecorder()
	h.handleTimeline(rec, httptest.NewRequest(http.MethodGet, "/audit/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseFilters(t *testing.T) {
	h := newTestHandler(&stubTimelineService{})

	// Defaults: a seven day window ending today.
	req := httptest.NewRequest(http.MethodGet, "/audit/", nil)
	filters, err := h.parseFilters(req)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC), filters.From)
	require.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC).Add(24*time.Hour-time.Nanosecond), filters.To)
	require.Equal(t, 1, filters.Page)
	require.Equal(t, defaultPageSize, filters.PageSize)

	// Explicit window and filters.
	actorID := uuid.New()
	req = httptest.NewRequest(http.MethodGet, "/audit/?from=2026-07-01&to=2026-07-31&actor_id="+actorID.String()+"&entity=grade_record&page_size=100", nil)
	filters, err = h.parseFilters(req)
	require.NoError(t, err)
	require.Equal(t, actorID, filters.ActorID)
	require.Equal(t, "grade_record", filters.Entity)
	require.Equal(t, maxPageSize, filters.PageSize)

	for _, target := range []string{
		"/audit/?from=not-a-date",
		"/audit/?to=not-a-date",
		"/audit/?from=2026-08-10&to=2026-08-01",
		"/audit/?from=2025-01-01&to=2026-08-01",
		"/audit/?actor_id=zzz",
		"/audit/?page=0",
		"/audit/?page_size=-1",
	} {
		_, err = h.parseFilters(httptest.NewRequest(http.MethodGet, target, nil))
		require.Error(t, err, target)
	}
}

func TestHandleExport(t *testing.T) {
	csv := "at,actor_id,school_id,action,entity,entity_id\n2026-08-14T10:30:00Z,x,y,GRADE_RELEASE,grade_record,z\n"
	svc := &stubTimelineService{csv: []byte(csv)}
	h := newTestHandler(svc)

	actor := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: uuid.New()}
	rec := httptest.NewRecorder()
	h.handleExport(rec, requestAs(t, actor, "/audit/export.csv"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit-timeline.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "at,actor_id"))
}

func TestHandleTimelineDenied(t *testing.T) {
	svc := &stubTimelineService{err: &authz.DeniedError{Reason: "no audit access"}}
	h := newTestHandler(svc)

	actor := authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher, SchoolID: uuid.New()}
	rec := httptest.NewRecorder()
	h.handleTimeline(rec, requestAs(t, actor, "/audit/"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
