package tenancy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campusgrid/campusgrid/internal/authz"
)

type stubResource struct {
	school uuid.UUID
}

func (s stubResource) ResourceSchoolID() uuid.UUID { return s.school }

func TestValidateSchoolAccess(t *testing.T) {
	school := uuid.New()
	g := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: school}, nil)
	require.True(t, g.ValidateSchoolAccess(school))
	require.False(t, g.ValidateSchoolAccess(uuid.New()))

	admin := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}, nil)
	require.True(t, admin.ValidateSchoolAccess(uuid.New()))

	unassigned := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher}, nil)
	require.False(t, unassigned.ValidateSchoolAccess(school))
	require.False(t, unassigned.ValidateSchoolAccess(uuid.Nil))
}

func TestValidateResourceAccess(t *testing.T) {
	school := uuid.New()
	g := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher, SchoolID: school}, nil)

	require.NoError(t, g.ValidateResourceAccess(stubResource{school: school}, nil))

	err := g.ValidateResourceAccess(stubResource{school: uuid.New()}, nil)
	require.ErrorIs(t, err, ErrTenancyViolation)

	// A resource that cannot prove its school fails closed.
	err = g.ValidateResourceAccess(stubResource{}, nil)
	require.ErrorIs(t, err, ErrTenancyViolation)

	// An override replaces the resource's own school id.
	other := uuid.New()
	err = g.ValidateResourceAccess(stubResource{school: school}, &other)
	require.ErrorIs(t, err, ErrTenancyViolation)
	require.NoError(t, g.ValidateResourceAccess(stubResource{school: other}, &school))

	admin := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}, nil)
	require.NoError(t, admin.ValidateResourceAccess(stubResource{}, nil))
}

func TestApplySchoolFilter(t *testing.T) {
	school := uuid.New()
	user := uuid.New()

	g := NewGuard(authz.Principal{UserID: user, Role: authz.RolePrincipal, SchoolID: school}, nil)

	cond := g.ApplySchoolFilter(NewCondition(), "grade_records").(*Condition)
	sql, args := cond.SQL(1)
	require.Equal(t, "school_id = $1", sql)
	require.Equal(t, []any{school}, args)

	// The users table is owner-or-school filtered so a row stays visible to
	// its owner.
	cond = g.ApplySchoolFilter(NewCondition(), "users").(*Condition)
	sql, args = cond.SQL(1)
	require.Equal(t, "(id = $1 OR school_id = $2)", sql)
	require.Equal(t, []any{user, school}, args)

	// Tables outside the tenant-scoped set pass through untouched.
	cond = g.ApplySchoolFilter(NewCondition(), "permission_keys").(*Condition)
	sql, _ = cond.SQL(1)
	require.Equal(t, "TRUE", sql)

	admin := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}, nil)
	cond = admin.ApplySchoolFilter(NewCondition(), "grade_records").(*Condition)
	sql, _ = cond.SQL(1)
	require.Equal(t, "TRUE", sql)
}

func TestApplySchoolFilterNoSchoolFailsClosed(t *testing.T) {
	g := NewGuard(authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal}, nil)
	cond := g.ApplySchoolFilter(NewCondition(), "students").(*Condition)
	require.True(t, cond.Impossible())
	sql, args := cond.SQL(1)
	require.Equal(t, "FALSE", sql)
	require.Nil(t, args)
}
