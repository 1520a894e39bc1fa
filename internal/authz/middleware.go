package authz

import (
	"net/http"

	"log/slog"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/shared"
)

// DeniedCounter receives one count per authorization refusal.
type DeniedCounter interface {
	CountAccessDenied(permission string)
}

// Middleware wires permission checks into the HTTP handler chain. The
// principal is rebuilt from the session on every request and stored in the
// request context for downstream handlers.
type Middleware struct {
	Logger  *slog.Logger
	Metrics DeniedCounter
}

// WithPrincipal resolves the session actor into a Principal and stores it in
// the request context. Requests without a session user proceed without a
// principal; permission middleware then denies them.
func (m Middleware) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := uuid.Parse(sess.User())
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("authz parse user id", slog.String("value", sess.User()))
			}
			next.ServeHTTP(w, r)
			return
		}
		p := Principal{
			UserID: userID,
			Role:   ParseRole(sess.Role()),
		}
		if raw := sess.SchoolID(); raw != "" {
			if schoolID, err := uuid.Parse(raw); err == nil {
				p.SchoolID = schoolID
			}
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequirePermission ensures the current principal holds the permission at any
// scope. Unauthenticated requests and unknown roles are denied.
func (m Middleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return m.require(key, ScopeNone)
}

// RequireAtLeast ensures the permission is granted at a scope covering the
// given breadth.
func (m Middleware) RequireAtLeast(key string, scope Scope) func(http.Handler) http.Handler {
	return m.require(key, scope)
}

func (m Middleware) require(key string, scope Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			d := RequireScope(p.Role, key, scope)
			if !d.Allowed {
				if m.Metrics != nil {
					m.Metrics.CountAccessDenied(key)
				}
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("user", p.UserID.String()),
						slog.String("role", string(p.Role)),
						slog.String("permission", key),
						slog.String("reason", d.Reason))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
