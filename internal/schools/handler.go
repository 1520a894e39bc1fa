package schools

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/platform/httpx"
)

// Handler wires school master-data endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	authz    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: mw}
}

// MountRoutes registers school routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequirePermission(authz.PermSchoolsManage))
		r.Post("/", h.create)
		r.Post("/{id}/deactivate", h.setActive(false))
		r.Post("/{id}/activate", h.setActive(true))
	})
}

type schoolResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address,omitempty"`
	OwnerID  uuid.UUID `json:"owner_id,omitempty"`
	IsActive bool      `json:"is_active"`
}

func toResponse(s School) schoolResponse {
	return schoolResponse{ID: s.ID, Name: s.Name, Address: s.Address, OwnerID: s.OwnerID, IsActive: s.IsActive}
}

type createRequest struct {
	Name    string    `json:"name" validate:"required"`
	Address string    `json:"address"`
	OwnerID uuid.UUID `json:"owner_id"`
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
	school, err := h.service.Create(r.Context(), actor, CreateInput{Name: req.Name, Address: req.Address, OwnerID: req.OwnerID})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(school))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid school id")
		return
	}
	school, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(school))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	list, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]schoolResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schools": out})
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid school id")
			return
		}
		if err := h.service.SetActive(r.Context(), actor, id, active); err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
