package grades

import (
	"context"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/platform/httpx"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// GradeService defines the business contract the handler depends on.
type GradeService interface {
	CreateDraft(ctx context.Context, actor authz.Principal, input CreateGradeInput) (GradeRecord, error)
	UpdateContent(ctx context.Context, actor authz.Principal, id uuid.UUID, score float64, comment string) (GradeRecord, error)
	Submit(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Approve(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Reject(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Hold(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Reopen(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Release(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error)
	Override(ctx context.Context, actor authz.Principal, id uuid.UUID, target GradeStatus, note string) (GradeRecord, error)
	ApproveBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note string) error
	RejectBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note string) error
	ReleaseBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note, idemKey string) error
	Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (GradeRecord, error)
	ListGradebook(ctx context.Context, actor authz.Principal, filter ListFilter) ([]GradeRecord, error)
	History(ctx context.Context, actor authz.Principal, id uuid.UUID) ([]shared.ApprovalLog, error)
}

// Handler wires grade workflow endpoints.
type Handler struct {
	logger   *slog.Logger
	service  GradeService
	validate *validator.Validate
	authz    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service GradeService, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: mw}
}

// MountRoutes registers grade routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradebookView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/history", h.history)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradesEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradesSubmit))
		r.Post("/{id}/submit", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Submit(ctx, p, id, note)
		}))
		r.Post("/{id}/reopen", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Reopen(ctx, p, id, note)
		}))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradesApprove))
		r.Post("/{id}/approve", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Approve(ctx, p, id, note)
		}))
		r.Post("/{id}/reject", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Reject(ctx, p, id, note)
		}))
		r.Post("/{id}/hold", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Hold(ctx, p, id, note)
		}))
		r.Post("/batch/approve", h.batch(h.service.ApproveBatch))
		r.Post("/batch/reject", h.batch(h.service.RejectBatch))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradesRelease))
		r.Post("/{id}/release", h.action(func(ctx context.Context, p authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
			return h.service.Release(ctx, p, id, note)
		}))
		r.Post("/batch/release", h.batchRelease)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermGradesOverride))
		r.Post("/{id}/override", h.override)
	})
}

type gradeResponse struct {
	ID        uuid.UUID `json:"id"`
	SchoolID  uuid.UUID `json:"school_id"`
	ClassID   uuid.UUID `json:"class_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	StudentID uuid.UUID `json:"student_id"`
	TeacherID uuid.UUID `json:"teacher_id"`
	Term      string    `json:"term"`
	Score     float64   `json:"score"`
	MaxScore  float64   `json:"max_score"`
	Status    string    `json:"status"`
	Comment   string    `json:"comment,omitempty"`
}

func toResponse(rec GradeRecord) gradeResponse {
	return gradeResponse{
		ID:        rec.ID,
		SchoolID:  rec.SchoolID,
		ClassID:   rec.ClassID,
		SubjectID: rec.SubjectID,
		StudentID: rec.StudentID,
		TeacherID: rec.TeacherID,
		Term:      rec.Term,
		Score:     rec.Score,
		MaxScore:  rec.MaxScore,
		Status:    string(rec.Status),
		Comment:   rec.Comment,
	}
}

type createRequest struct {
	ClassID   uuid.UUID `json:"class_id" validate:"required"`
	SubjectID uuid.UUID `json:"subject_id" validate:"required"`
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	Term      string    `json:"term" validate:"required"`
	Score     float64   `json:"score" validate:"gte=0"`
	MaxScore  float64   `json:"max_score" validate:"gt=0"`
	Comment   string    `json:"comment"`
}

type updateRequest struct {
	Score   float64 `json:"score" validate:"gte=0"`
	Comment string  `json:"comment"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

type batchRequest struct {
	IDs  []uuid.UUID `json:"ids" validate:"required,min=1"`
	Note string      `json:"note"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.CreateDraft(r.Context(), actor, CreateGradeInput{
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		StudentID: req.StudentID,
		Term:      req.Term,
		Score:     req.Score,
		MaxScore:  req.MaxScore,
		Comment:   req.Comment,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(rec))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	rec, err := h.service.UpdateContent(r.Context(), actor, id, req.Score, req.Comment)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	type entry struct {
		Action string `json:"action"`
		Actor  string `json:"actor"`
		Note   string `json:"note,omitempty"`
		At     string `json:"at"`
	}
	out := make([]entry, 0, len(logs))
	for _, l := range logs {
		out = append(out, entry{Action: string(l.Action), Actor: l.ActorID.String(), Note: l.Note, At: l.At.Format("2006-01-02T15:04:05Z07:00")})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": out})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var filter ListFilter
	q := r.URL.Query()
	if raw := q.Get("class_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid class_id")
			return
		}
		filter.ClassID = id
	}
	if raw := q.Get("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid student_id")
			return
		}
		filter.StudentID = id
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid status")
			return
		}
		filter.Status = status
	}
	records, err := h.service.ListGradebook(r.Context(), actor, filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]gradeResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grades": out})
}

func (h *Handler) action(fn func(context.Context, authz.Principal, uuid.UUID, string) (GradeRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := h.actorAndID(w, r)
		if !ok {
			return
		}
		var req noteRequest
		_ = httpx.DecodeJSON(r, &req)
		rec, err := fn(r.Context(), actor, id, req.Note)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toResponse(rec))
	}
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status")
		return
	}
	rec, err := h.service.Override(r.Context(), actor, id, status, req.Note)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) batch(fn func(context.Context, authz.Principal, []uuid.UUID, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		var req batchRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		if err := fn(r.Context(), actor, req.IDs, req.Note); err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"updated": len(req.IDs)})
	}
}

func (h *Handler) batchRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if err := h.service.ReleaseBatch(r.Context(), actor, req.IDs, req.Note, idemKey); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"released": len(req.IDs)})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (authz.Principal, uuid.UUID, bool) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return authz.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid record id")
		return authz.Principal{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrReadOnly):
		httpx.Problem(w, http.StatusConflict, "Read Only", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, authz.ErrAccessDenied), errors.Is(err, tenancy.ErrTenancyViolation), errors.Is(err, ErrIllegalTransition):
		httpx.RespondError(w, err)
	default:
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error("grades handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
