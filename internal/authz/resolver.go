// Package authz resolves role permissions and access scopes for the platform.
// All decisions are made synchronously over in-memory inputs; membership
// lookups are delegated to a directory collaborator.
package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Resolve maps a (role, permission key) pair to an allow/deny decision and the
// scope the permission is granted at. Unknown keys and unknown roles resolve
// to deny, never to an error. RoleSystemAdmin passes every check
// unconditionally at ScopeAll.
func Resolve(role Role, key string) Decision {
	if role == RoleSystemAdmin {
		return Decision{Allowed: true, Scope: ScopeAll}
	}
	perms, ok := grants[role]
	if !ok {
		return Deny(fmt.Sprintf("role %q holds no permissions", role))
	}
	scope, ok := perms[key]
	if !ok {
		return Deny(fmt.Sprintf("role %q lacks %q", role, key))
	}
	return Decision{Allowed: true, Scope: scope}
}

// RequireScope resolves the permission and additionally denies when the
// granted scope does not cover the required breadth.
func RequireScope(role Role, key string, required Scope) Decision {
	d := Resolve(role, key)
	if !d.Allowed {
		return d
	}
	if d.Scope == ScopeAll || d.Scope.Covers(required) {
		return d
	}
	return Deny(fmt.Sprintf("%q granted at %q, requires %q", key, d.Scope, required))
}

// MembershipDirectory answers the membership questions the scope predicates
// need. Implementations perform the lookup externally; the resolver only
// consumes the result.
type MembershipDirectory interface {
	// ClassSchool returns the school a class belongs to.
	ClassSchool(ctx context.Context, classID uuid.UUID) (uuid.UUID, error)
	// StudentSchool returns the school a student is enrolled in.
	StudentSchool(ctx context.Context, studentID uuid.UUID) (uuid.UUID, error)
	// TeacherTeachesClass reports whether the teacher is assigned to the class.
	TeacherTeachesClass(ctx context.Context, teacherID, classID uuid.UUID) (bool, error)
	// TeacherTeachesStudent reports whether the student sits in one of the
	// teacher's classes.
	TeacherTeachesStudent(ctx context.Context, teacherID, studentID uuid.UUID) (bool, error)
	// ParentHasChild reports whether the student is linked to the parent.
	ParentHasChild(ctx context.Context, parentID, studentID uuid.UUID) (bool, error)
	// ParentHasChildInClass reports whether any of the parent's children sit
	// in the class.
	ParentHasChildInClass(ctx context.Context, parentID, classID uuid.UUID) (bool, error)
}

// Resolver binds a principal and a membership directory to the static
// permission table, exposing resource-level predicates.
type Resolver struct {
	principal Principal
	dir       MembershipDirectory
}

// NewResolver constructs a Resolver for the principal.
func NewResolver(principal Principal, dir MembershipDirectory) *Resolver {
	return &Resolver{principal: principal, dir: dir}
}

// Principal returns the bound principal.
func (r *Resolver) Principal() Principal {
	return r.principal
}

// Resolve resolves a permission for the bound principal's role.
func (r *Resolver) Resolve(key string) Decision {
	return Resolve(r.principal.Role, key)
}

// CanAccessSchool reports whether the principal may touch data of schoolID
// under the given permission.
func (r *Resolver) CanAccessSchool(key string, schoolID uuid.UUID) bool {
	d := r.Resolve(key)
	if !d.Allowed {
		return false
	}
	if d.Scope == ScopeAll {
		return true
	}
	if !r.principal.HasSchool() {
		return false
	}
	return r.principal.SchoolID == schoolID
}

// CanAccessClass reports whether the principal may touch data of classID under
// the given permission. Membership is resolved through the directory.
func (r *Resolver) CanAccessClass(ctx context.Context, key string, classID uuid.UUID) (bool, error) {
	d := r.Resolve(key)
	if !d.Allowed {
		return false, nil
	}
	switch d.Scope {
	case ScopeAll:
		return true, nil
	case ScopeSchool:
		if !r.principal.HasSchool() {
			return false, nil
		}
		school, err := r.dir.ClassSchool(ctx, classID)
		if err != nil {
			return false, err
		}
		return school == r.principal.SchoolID, nil
	case ScopeClass, ScopeOwn:
		switch r.principal.Role {
		case RoleTeacher:
			return r.dir.TeacherTeachesClass(ctx, r.principal.UserID, classID)
		case RoleParent:
			return r.dir.ParentHasChildInClass(ctx, r.principal.UserID, classID)
		default:
			return false, nil
		}
	default:
		return false, nil
	}
}

// CanAccessStudent reports whether the principal may touch data of studentID
// under the given permission. schoolID, when known by the caller, avoids a
// directory lookup; pass uuid.Nil to resolve it from the directory.
func (r *Resolver) CanAccessStudent(ctx context.Context, key string, studentID, schoolID uuid.UUID) (bool, error) {
	d := r.Resolve(key)
	if !d.Allowed {
		return false, nil
	}
	switch d.Scope {
	case ScopeAll:
		return true, nil
	case ScopeSchool, ScopeClass:
		if !r.principal.HasSchool() {
			return false, nil
		}
		if schoolID == uuid.Nil {
			resolved, err := r.dir.StudentSchool(ctx, studentID)
			if err != nil {
				return false, err
			}
			schoolID = resolved
		}
		return schoolID == r.principal.SchoolID, nil
	case ScopeOwn:
		switch r.principal.Role {
		case RoleParent:
			return r.dir.ParentHasChild(ctx, r.principal.UserID, studentID)
		case RoleTeacher:
			return r.dir.TeacherTeachesStudent(ctx, r.principal.UserID, studentID)
		default:
			return false, nil
		}
	default:
		return false, nil
	}
}
