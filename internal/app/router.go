package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/campusgrid/campusgrid/internal/audit/http"
	"github.com/campusgrid/campusgrid/internal/auth"
	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/fees"
	"github.com/campusgrid/campusgrid/internal/grades"
	"github.com/campusgrid/campusgrid/internal/observability"
	"github.com/campusgrid/campusgrid/internal/schools"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/users"
	"github.com/campusgrid/campusgrid/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthzMW        authz.Middleware
	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	SchoolsHandler *schools.Handler
	GradesHandler  *grades.Handler
	FeesHandler    *fees.Handler
	AuditHandler   *audithttp.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with CampusGrid defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything below requires an authenticated principal.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthzMW.WithPrincipal)
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.SchoolsHandler != nil {
			r.Route("/schools", params.SchoolsHandler.MountRoutes)
		}
		if params.GradesHandler != nil {
			r.Route("/grades", params.GradesHandler.MountRoutes)
		}
		if params.FeesHandler != nil {
			r.Route("/fees", params.FeesHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.AuthzMW.RequirePermission(authz.PermSchoolsManage))
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
