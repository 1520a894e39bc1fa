package fees

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
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// FeeService defines the business contract the handler depends on.
type FeeService interface {
	CreateCharge(ctx context.Context, actor authz.Principal, input ChargeInput) (FeeBalance, error)
	RecordPayment(ctx context.Context, actor authz.Principal, id uuid.UUID, amount int64) (FeeBalance, error)
	Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (FeeBalance, error)
	List(ctx context.Context, actor authz.Principal, filter ListFilter) ([]FeeBalance, error)
}

// Handler wires fee endpoints.
type Handler struct {
	logger   *slog.Logger
	service  FeeService
	validate *validator.Validate
	authz    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service FeeService, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: mw}
}

// MountRoutes registers fee routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermFeesView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermFeesManage))
		r.Post("/", h.createCharge)
		r.Post("/{id}/payments", h.recordPayment)
	})
}

type feeResponse struct {
	ID          uuid.UUID `json:"id"`
	SchoolID    uuid.UUID `json:"school_id"`
	StudentID   uuid.UUID `json:"student_id"`
	Term        string    `json:"term"`
	Title       string    `json:"title"`
	AmountDue   int64     `json:"amount_due"`
	AmountPaid  int64     `json:"amount_paid"`
	Outstanding int64     `json:"outstanding"`
}

func toResponse(f FeeBalance) feeResponse {
	return feeResponse{
		ID:          f.ID,
		SchoolID:    f.SchoolID,
		StudentID:   f.StudentID,
		Term:        f.Term,
		Title:       f.Title,
		AmountDue:   f.AmountDue,
		AmountPaid:  f.AmountPaid,
		Outstanding: f.Outstanding(),
	}
}

type chargeRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	Term      string    `json:"term" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	AmountDue int64     `json:"amount_due" validate:"gt=0"`
}

type paymentRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) createCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req chargeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fee, err := h.service.CreateCharge(r.Context(), actor, ChargeInput{
		StudentID: req.StudentID,
		Term:      req.Term,
		Title:     req.Title,
		AmountDue: req.AmountDue,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(fee))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fee, err := h.service.RecordPayment(r.Context(), actor, id, req.Amount)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(fee))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	fee, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(fee))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var filter ListFilter
	q := r.URL.Query()
	if raw := q.Get("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid student_id")
			return
		}
		filter.StudentID = id
	}
	filter.Term = q.Get("term")
	list, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]feeResponse, 0, len(list))
	for _, f := range list {
		out = append(out, toResponse(f))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fees": out})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (authz.Principal, uuid.UUID, bool) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return authz.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fee id")
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
	case errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrAccessDenied), errors.Is(err, tenancy.ErrTenancyViolation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("fees handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
