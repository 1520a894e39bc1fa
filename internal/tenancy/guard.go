// Package tenancy enforces school-level data isolation. It is a
// defense-in-depth layer: queries are shaped before they reach PostgreSQL,
// which applies its own row-level policies as the final backstop.
package tenancy

import (
	"errors"
	"fmt"
	"net/http"

	"log/slog"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
)

// ErrTenancyViolation indicates a resource outside the principal's school, or
// a resource whose school cannot be proven. Callers treat it like an access
// denial but it is logged distinctly for audit purposes.
var ErrTenancyViolation = errors.New("tenancy: violation")

// ViolationError carries detail while matching ErrTenancyViolation.
type ViolationError struct {
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("tenancy: violation: %s", e.Detail)
}

// Unwrap lets errors.Is match ErrTenancyViolation.
func (e *ViolationError) Unwrap() error { return ErrTenancyViolation }

// HTTPStatus maps the violation to 403 for the httpx responder.
func (e *ViolationError) HTTPStatus() int { return http.StatusForbidden }

// Resource is any tenant-owned record. Only the owning school matters here;
// uuid.Nil means the record carries no tenancy information.
type Resource interface {
	ResourceSchoolID() uuid.UUID
}

// Guard decides whether a principal may touch data of a given school.
type Guard struct {
	principal authz.Principal
	logger    *slog.Logger
}

// NewGuard constructs a Guard for the principal.
func NewGuard(principal authz.Principal, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{principal: principal, logger: logger}
}

// ValidateSchoolAccess reports whether the principal may access data of the
// target school. System administrators pass unconditionally; everyone else
// needs an assigned school exactly equal to the target.
func (g *Guard) ValidateSchoolAccess(schoolID uuid.UUID) bool {
	if g.principal.IsAdmin() {
		return true
	}
	if !g.principal.HasSchool() {
		return false
	}
	return g.principal.SchoolID == schoolID
}

// ValidateResourceAccess checks a resource against the principal's school.
// override, when non-nil, replaces the resource's own school id. A resource
// whose effective school id is missing fails closed: it cannot be proven safe.
func (g *Guard) ValidateResourceAccess(res Resource, override *uuid.UUID) error {
	if g.principal.IsAdmin() {
		return nil
	}
	target := uuid.Nil
	if res != nil {
		target = res.ResourceSchoolID()
	}
	if override != nil {
		target = *override
	}
	if target == uuid.Nil {
		g.logger.Warn("resource without school id",
			slog.String("user", g.principal.UserID.String()),
			slog.String("role", string(g.principal.Role)))
		return &ViolationError{Detail: "resource has no school id"}
	}
	if !g.ValidateSchoolAccess(target) {
		return &ViolationError{Detail: fmt.Sprintf("school %s outside principal tenancy", target)}
	}
	return nil
}
