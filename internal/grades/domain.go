package grades

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
)

// GradeStatus is the closed set of grade record lifecycle states.
type GradeStatus string

const (
	StatusDraft       GradeStatus = "DRAFT"
	StatusSubmitted   GradeStatus = "SUBMITTED"
	StatusUnderReview GradeStatus = "UNDER_REVIEW"
	StatusApproved    GradeStatus = "APPROVED"
	StatusRejected    GradeStatus = "REJECTED"
	StatusReleased    GradeStatus = "RELEASED"
)

// ParseStatus validates a stored status string.
func ParseStatus(raw string) (GradeStatus, error) {
	switch GradeStatus(raw) {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusReleased:
		return GradeStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
}

// GradeRecord is a single score entry moving through the approval workflow.
type GradeRecord struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	ClassID   uuid.UUID
	SubjectID uuid.UUID
	StudentID uuid.UUID
	TeacherID uuid.UUID
	Term      string
	Score     float64
	MaxScore  float64
	Status    GradeStatus
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResourceSchoolID implements tenancy.Resource.
func (r GradeRecord) ResourceSchoolID() uuid.UUID {
	return r.SchoolID
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("grades: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("grades: invalid input")
	// ErrIllegalTransition occurs when a status change is not reachable from
	// the current status by the acting role. It is decided before any
	// persistence call, distinct from storage failures.
	ErrIllegalTransition = errors.New("grades: illegal transition")
	// ErrReadOnly occurs when an actor attempts to edit a record whose status
	// forbids it.
	ErrReadOnly = errors.New("grades: record read-only")
)

// IllegalTransitionError carries transition detail while matching
// ErrIllegalTransition.
type IllegalTransitionError struct {
	From   GradeStatus
	To     GradeStatus
	Role   authz.Role
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("grades: illegal transition %s -> %s by %s: %s", e.From, e.To, e.Role, e.Reason)
}

// Unwrap lets errors.Is match ErrIllegalTransition.
func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// HTTPStatus maps the rejection to 409 for the httpx responder.
func (e *IllegalTransitionError) HTTPStatus() int { return http.StatusConflict }

// transitionRule gates one edge of the lifecycle graph.
type transitionRule struct {
	permission    string
	requiresOwner bool
}

// The lifecycle graph. Every legal edge appears here exactly once; the
// override path bypasses the graph and is handled separately.
var transitions = map[GradeStatus]map[GradeStatus]transitionRule{
	StatusDraft: {
		StatusSubmitted: {permission: authz.PermGradesSubmit, requiresOwner: true},
	},
	StatusSubmitted: {
		StatusApproved:    {permission: authz.PermGradesApprove},
		StatusRejected:    {permission: authz.PermGradesApprove},
		StatusUnderReview: {permission: authz.PermGradesApprove},
	},
	StatusUnderReview: {
		StatusApproved: {permission: authz.PermGradesApprove},
		StatusRejected: {permission: authz.PermGradesApprove},
	},
	StatusRejected: {
		StatusDraft: {permission: authz.PermGradesSubmit, requiresOwner: true},
	},
	StatusApproved: {
		StatusReleased: {permission: authz.PermGradesRelease},
	},
}

// AttemptTransition validates one lifecycle edge for the acting principal and
// returns the resulting status. It never touches storage; callers persist only
// after a nil error. Direct any-to-any sets go through CanOverride instead.
func AttemptTransition(rec GradeRecord, target GradeStatus, actor authz.Principal) (GradeStatus, error) {
	edges, ok := transitions[rec.Status]
	if !ok {
		return "", &IllegalTransitionError{From: rec.Status, To: target, Role: actor.Role, Reason: "no transitions from status"}
	}
	rule, ok := edges[target]
	if !ok {
		return "", &IllegalTransitionError{From: rec.Status, To: target, Role: actor.Role, Reason: "edge not in lifecycle graph"}
	}
	d := authz.Resolve(actor.Role, rule.permission)
	if !d.Allowed {
		return "", &IllegalTransitionError{From: rec.Status, To: target, Role: actor.Role, Reason: d.Reason}
	}
	if rule.requiresOwner && !actor.IsAdmin() && rec.TeacherID != actor.UserID {
		return "", &IllegalTransitionError{From: rec.Status, To: target, Role: actor.Role, Reason: "not the record owner"}
	}
	return target, nil
}

// CanOverride reports whether the actor may set any status directly,
// bypassing the lifecycle graph. Used for corrections after release.
func CanOverride(actor authz.Principal) bool {
	return authz.Resolve(actor.Role, authz.PermGradesOverride).Allowed
}

// CanEdit reports whether the actor may mutate the record's content at its
// current status. Once a grade is submitted the owning teacher loses write
// access; released records are read-only for everyone except the override
// path.
func CanEdit(rec GradeRecord, actor authz.Principal) bool {
	if actor.IsAdmin() {
		return true
	}
	switch actor.Role {
	case authz.RoleTeacher:
		if rec.TeacherID != actor.UserID {
			return false
		}
		return rec.Status == StatusDraft || rec.Status == StatusRejected
	case authz.RolePrincipal:
		switch rec.Status {
		case StatusSubmitted, StatusUnderReview, StatusApproved:
			return true
		default:
			return false
		}
	default:
		return false
	}
}
