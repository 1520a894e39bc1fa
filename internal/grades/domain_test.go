package grades

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campusgrid/campusgrid/internal/authz"
)

func TestAttemptTransition(t *testing.T) {
	teacherID := uuid.New()
	teacher := authz.Principal{UserID: teacherID, Role: authz.RoleTeacher, SchoolID: uuid.New()}
	principal := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: teacher.SchoolID}
	admin := authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}

	rec := GradeRecord{ID: uuid.New(), TeacherID: teacherID, Status: StatusDraft}

	next, err := AttemptTransition(rec, StatusSubmitted, teacher)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, next)

	// Only the owning teacher submits a draft.
	_, err = AttemptTransition(rec, StatusSubmitted, authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher})
	require.ErrorIs(t, err, ErrIllegalTransition)

	// Administrators bypass ownership.
	_, err = AttemptTransition(rec, StatusSubmitted, admin)
	require.NoError(t, err)

	// Teachers cannot approve.
	rec.Status = StatusSubmitted
	_, err = AttemptTransition(rec, StatusApproved, teacher)
	require.ErrorIs(t, err, ErrIllegalTransition)

	for _, target := range []GradeStatus{StatusApproved, StatusRejected, StatusUnderReview} {
		_, err = AttemptTransition(rec, target, principal)
		require.NoError(t, err, target)
	}

	rec.Status = StatusUnderReview
	_, err = AttemptTransition(rec, StatusApproved, principal)
	require.NoError(t, err)
	_, err = AttemptTransition(rec, StatusReleased, principal)
	require.ErrorIs(t, err, ErrIllegalTransition)

	rec.Status = StatusApproved
	_, err = AttemptTransition(rec, StatusReleased, principal)
	require.NoError(t, err)

	rec.Status = StatusRejected
	_, err = AttemptTransition(rec, StatusDraft, teacher)
	require.NoError(t, err)

	// Released is terminal for the graph.
	rec.Status = StatusReleased
	_, err = AttemptTransition(rec, StatusDraft, principal)
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = AttemptTransition(rec, StatusDraft, admin)
	require.ErrorIs(t, err, ErrIllegalTransition)

	var detail *IllegalTransitionError
	require.True(t, errors.As(err, &detail))
	require.Equal(t, StatusReleased, detail.From)
	require.Equal(t, StatusDraft, detail.To)
}

func TestCanEdit(t *testing.T) {
	teacherID := uuid.New()
	teacher := authz.Principal{UserID: teacherID, Role: authz.RoleTeacher}
	otherTeacher := authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher}
	principal := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal}
	parent := authz.Principal{UserID: uuid.New(), Role: authz.RoleParent}
	admin := authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}

	rec := GradeRecord{TeacherID: teacherID, Status: StatusDraft}
	require.True(t, CanEdit(rec, teacher))
	require.False(t, CanEdit(rec, otherTeacher))
	require.False(t, CanEdit(rec, principal))
	require.False(t, CanEdit(rec, parent))

	rec.Status = StatusRejected
	require.True(t, CanEdit(rec, teacher))

	// The owning teacher loses write access once the record is submitted.
	rec.Status = StatusSubmitted
	require.False(t, CanEdit(rec, teacher))
	require.True(t, CanEdit(rec, principal))

	rec.Status = StatusUnderReview
	require.True(t, CanEdit(rec, principal))

	rec.Status = StatusApproved
	require.True(t, CanEdit(rec, principal))

	rec.Status = StatusReleased
	require.False(t, CanEdit(rec, teacher))
	require.False(t, CanEdit(rec, principal))
	require.True(t, CanEdit(rec, admin))
}

func TestCanOverride(t *testing.T) {
	require.True(t, CanOverride(authz.Principal{Role: authz.RolePrincipal}))
	require.True(t, CanOverride(authz.Principal{Role: authz.RoleSystemAdmin}))
	require.False(t, CanOverride(authz.Principal{Role: authz.RoleTeacher}))
	require.False(t, CanOverride(authz.Principal{Role: authz.RoleParent}))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("RELEASED")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, s)

	_, err = ParseStatus("released")
	require.ErrorIs(t, err, ErrValidation)
	_, err = ParseStatus("LIMBO")
	require.ErrorIs(t, err, ErrValidation)
}
