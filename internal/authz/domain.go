package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. Exactly one role is assigned per
// account at provisioning time.
type Role string

const (
	RoleUnknown        Role = ""
	RoleSystemAdmin    Role = "system_admin"
	RolePrincipal      Role = "principal"
	RoleTeacher        Role = "teacher"
	RoleParent         Role = "parent"
	RoleFinanceOfficer Role = "finance_officer"
	RoleSchoolOwner    Role = "school_owner"
)

// Historical aliases for the platform administrator role, kept for accounts
// provisioned before the naming was consolidated.
var systemAdminAliases = map[string]struct{}{
	"super_admin":    {},
	"platform_admin": {},
}

// ParseRole normalises a stored role string into the closed enumeration.
// Anything unrecognised maps to RoleUnknown, which resolves to deny for every
// permission.
func ParseRole(raw string) Role {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := systemAdminAliases[normalized]; ok {
		return RoleSystemAdmin
	}
	switch Role(normalized) {
	case RoleSystemAdmin, RolePrincipal, RoleTeacher, RoleParent, RoleFinanceOfficer, RoleSchoolOwner:
		return Role(normalized)
	default:
		return RoleUnknown
	}
}

// Roles lists every assignable role.
func Roles() []Role {
	return []Role{RoleSystemAdmin, RolePrincipal, RoleTeacher, RoleParent, RoleFinanceOfficer, RoleSchoolOwner}
}

// Scope describes the breadth of data a granted permission covers.
type Scope string

const (
	ScopeNone   Scope = ""
	ScopeOwn    Scope = "own"
	ScopeClass  Scope = "class"
	ScopeSchool Scope = "school"
	ScopeAll    Scope = "all"
)

var scopeRank = map[Scope]int{
	ScopeNone:   0,
	ScopeOwn:    1,
	ScopeClass:  2,
	ScopeSchool: 3,
	ScopeAll:    4,
}

// Covers reports whether s grants at least the breadth of other.
func (s Scope) Covers(other Scope) bool {
	return scopeRank[s] >= scopeRank[other]
}

// Principal is the acting user. SchoolID is uuid.Nil for accounts without a
// school assignment (platform administrators, unprovisioned accounts).
type Principal struct {
	UserID   uuid.UUID
	Role     Role
	SchoolID uuid.UUID
}

// HasSchool reports whether the principal is assigned to a tenant.
func (p Principal) HasSchool() bool {
	return p.SchoolID != uuid.Nil
}

// IsAdmin reports whether the principal bypasses tenancy and permission checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleSystemAdmin
}

// Decision is the outcome of a permission resolution.
type Decision struct {
	Allowed bool
	Scope   Scope
	Reason  string
}

// Deny builds a denying decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ErrAccessDenied is returned when a resolved permission or scope check fails.
var ErrAccessDenied = errors.New("authz: access denied")

// DeniedError carries the denial reason while matching ErrAccessDenied.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return ErrAccessDenied.Error()
	}
	return fmt.Sprintf("authz: access denied: %s", e.Reason)
}

// Unwrap lets errors.Is match ErrAccessDenied.
func (e *DeniedError) Unwrap() error { return ErrAccessDenied }

// HTTPStatus maps the denial to 403 for the httpx responder.
func (e *DeniedError) HTTPStatus() int { return http.StatusForbidden }
