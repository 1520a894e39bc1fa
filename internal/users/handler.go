package users

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/platform/httpx"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// UserService defines the business contract the handler depends on.
type UserService interface {
	Create(ctx context.Context, actor authz.Principal, input CreateInput) (User, error)
	Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (User, error)
	List(ctx context.Context, actor authz.Principal, limit, offset int) ([]User, error)
	ChangeRole(ctx context.Context, actor authz.Principal, id uuid.UUID, newRole string, schoolID uuid.UUID) error
	SetActive(ctx context.Context, actor authz.Principal, id uuid.UUID, active bool) error
	ChangePassword(ctx context.Context, actor authz.Principal, id uuid.UUID, newPassword string) error
}

// Handler manages account management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  UserService
	validate *validator.Validate
	authz    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service UserService, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: mw}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermUsersView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermUsersManage))
		r.Post("/", h.create)
		r.Get("/roles", h.listRoles)
		r.Post("/{id}/role", h.changeRole)
		r.Post("/{id}/activate", h.setActive(true))
		r.Post("/{id}/deactivate", h.setActive(false))
	})
	// Password change authorizes inside the service so a user can always
	// rotate their own credential.
	r.Post("/{id}/password", h.changePassword)
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	SchoolID string    `json:"school_id,omitempty"`
	IsActive bool      `json:"is_active"`
}

func toResponse(u User) userResponse {
	resp := userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
	if u.SchoolID != uuid.Nil {
		resp.SchoolID = u.SchoolID.String()
	}
	return resp
}

type createRequest struct {
	Email    string    `json:"email" validate:"required,email"`
	Name     string    `json:"name" validate:"required"`
	Password string    `json:"password" validate:"required"`
	Role     string    `json:"role" validate:"required"`
	SchoolID uuid.UUID `json:"school_id"`
}

type changeRoleRequest struct {
	Role     string    `json:"role" validate:"required"`
	SchoolID uuid.UUID `json:"school_id"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required"`
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
	user, err := h.service.Create(r.Context(), actor, CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		SchoolID: req.SchoolID,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.service.List(r.Context(), actor, limit, offset)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := authz.Roles()
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangeRole(r.Context(), actor, id, req.Role, req.SchoolID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := h.actorAndID(w, r)
		if !ok {
			return
		}
		if err := h.service.SetActive(r.Context(), actor, id, active); err != nil {
			h.respondErr(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangePassword(r.Context(), actor, id, req.Password); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (authz.Principal, uuid.UUID, bool) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return authz.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return authz.Principal{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrWeakPassword):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrAccessDenied), errors.Is(err, tenancy.ErrTenancyViolation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("users handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
