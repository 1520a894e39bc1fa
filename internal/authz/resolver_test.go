package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	classSchools   map[uuid.UUID]uuid.UUID
	studentSchools map[uuid.UUID]uuid.UUID
	teacherClasses map[uuid.UUID]map[uuid.UUID]bool
	teacherKids    map[uuid.UUID]map[uuid.UUID]bool
	parentKids     map[uuid.UUID]map[uuid.UUID]bool
	parentClasses  map[uuid.UUID]map[uuid.UUID]bool
}

func (f *fakeDirectory) ClassSchool(_ context.Context, classID uuid.UUID) (uuid.UUID, error) {
	return f.classSchools[classID], nil
}

func (f *fakeDirectory) StudentSchool(_ context.Context, studentID uuid.UUID) (uuid.UUID, error) {
	return f.studentSchools[studentID], nil
}

func (f *fakeDirectory) TeacherTeachesClass(_ context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return f.teacherClasses[teacherID][classID], nil
}

func (f *fakeDirectory) TeacherTeachesStudent(_ context.Context, teacherID, studentID uuid.UUID) (bool, error) {
	return f.teacherKids[teacherID][studentID], nil
}

func (f *fakeDirectory) ParentHasChild(_ context.Context, parentID, studentID uuid.UUID) (bool, error) {
	return f.parentKids[parentID][studentID], nil
}

func (f *fakeDirectory) ParentHasChildInClass(_ context.Context, parentID, classID uuid.UUID) (bool, error) {
	return f.parentClasses[parentID][classID], nil
}

func TestResolve(t *testing.T) {
	d := Resolve(RoleTeacher, PermGradesEdit)
	require.True(t, d.Allowed)
	require.Equal(t, ScopeOwn, d.Scope)

	d = Resolve(RolePrincipal, PermGradesApprove)
	require.True(t, d.Allowed)
	require.Equal(t, ScopeSchool, d.Scope)

	d = Resolve(RoleParent, PermGradesEdit)
	require.False(t, d.Allowed)
	require.NotEmpty(t, d.Reason)

	d = Resolve(RoleUnknown, PermGradebookView)
	require.False(t, d.Allowed)

	// Unknown keys deny without error, even for known roles.
	d = Resolve(RolePrincipal, "grades.transmogrify")
	require.False(t, d.Allowed)
}

func TestResolveSystemAdminBypass(t *testing.T) {
	for _, key := range append(PermissionKeys(), "not.a.real.key") {
		d := Resolve(RoleSystemAdmin, key)
		require.True(t, d.Allowed, key)
		require.Equal(t, ScopeAll, d.Scope, key)
	}
}

func TestParseRoleAliases(t *testing.T) {
	require.Equal(t, RoleSystemAdmin, ParseRole("super_admin"))
	require.Equal(t, RoleSystemAdmin, ParseRole("platform_admin"))
	require.Equal(t, RoleSystemAdmin, ParseRole("  SYSTEM_ADMIN "))
	require.Equal(t, RoleTeacher, ParseRole("teacher"))
	require.Equal(t, RoleUnknown, ParseRole("janitor"))
}

func TestScopeCovers(t *testing.T) {
	require.True(t, ScopeAll.Covers(ScopeSchool))
	require.True(t, ScopeSchool.Covers(ScopeClass))
	require.True(t, ScopeClass.Covers(ScopeOwn))
	require.True(t, ScopeOwn.Covers(ScopeOwn))
	require.False(t, ScopeOwn.Covers(ScopeClass))
	require.False(t, ScopeSchool.Covers(ScopeAll))
	require.False(t, ScopeNone.Covers(ScopeOwn))
}

func TestRequireScope(t *testing.T) {
	d := RequireScope(RolePrincipal, PermGradebookView, ScopeClass)
	require.True(t, d.Allowed)

	d = RequireScope(RoleTeacher, PermGradebookView, ScopeSchool)
	require.False(t, d.Allowed)

	d = RequireScope(RoleSystemAdmin, PermGradebookView, ScopeAll)
	require.True(t, d.Allowed)
}

func TestCanAccessClass(t *testing.T) {
	ctx := context.Background()
	school := uuid.New()
	otherSchool := uuid.New()
	class := uuid.New()
	foreignClass := uuid.New()
	teacher := uuid.New()
	parent := uuid.New()

	dir := &fakeDirectory{
		classSchools: map[uuid.UUID]uuid.UUID{
			class:        school,
			foreignClass: otherSchool,
		},
		teacherClasses: map[uuid.UUID]map[uuid.UUID]bool{
			teacher: {class: true},
		},
		parentClasses: map[uuid.UUID]map[uuid.UUID]bool{
			parent: {class: true},
		},
	}

	principal := NewResolver(Principal{UserID: uuid.New(), Role: RolePrincipal, SchoolID: school}, dir)
	ok, err := principal.CanAccessClass(ctx, PermGradebookView, class)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = principal.CanAccessClass(ctx, PermGradebookView, foreignClass)
	require.NoError(t, err)
	require.False(t, ok)

	teach := NewResolver(Principal{UserID: teacher, Role: RoleTeacher, SchoolID: school}, dir)
	ok, err = teach.CanAccessClass(ctx, PermGradebookView, class)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = teach.CanAccessClass(ctx, PermGradebookView, foreignClass)
	require.NoError(t, err)
	require.False(t, ok)

	par := NewResolver(Principal{UserID: parent, Role: RoleParent, SchoolID: school}, dir)
	ok, err = par.CanAccessClass(ctx, PermGradebookView, class)
	require.NoError(t, err)
	require.True(t, ok)

	admin := NewResolver(Principal{UserID: uuid.New(), Role: RoleSystemAdmin}, dir)
	ok, err = admin.CanAccessClass(ctx, PermGradebookView, foreignClass)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanAccessStudent(t *testing.T) {
	ctx := context.Background()
	school := uuid.New()
	student := uuid.New()
	otherStudent := uuid.New()
	teacher := uuid.New()
	parent := uuid.New()

	dir := &fakeDirectory{
		studentSchools: map[uuid.UUID]uuid.UUID{
			student:      school,
			otherStudent: uuid.New(),
		},
		teacherKids: map[uuid.UUID]map[uuid.UUID]bool{
			teacher: {student: true},
		},
		parentKids: map[uuid.UUID]map[uuid.UUID]bool{
			parent: {student: true},
		},
	}

	par := NewResolver(Principal{UserID: parent, Role: RoleParent, SchoolID: school}, dir)
	ok, err := par.CanAccessStudent(ctx, PermGradebookView, student, uuid.Nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = par.CanAccessStudent(ctx, PermGradebookView, otherStudent, uuid.Nil)
	require.NoError(t, err)
	require.False(t, ok)

	teach := NewResolver(Principal{UserID: teacher, Role: RoleTeacher, SchoolID: school}, dir)
	ok, err = teach.CanAccessStudent(ctx, PermGradesEdit, student, uuid.Nil)
	require.NoError(t, err)
	require.True(t, ok)

	// School scope resolves the student's school from the directory when the
	// caller does not know it.
	principal := NewResolver(Principal{UserID: uuid.New(), Role: RolePrincipal, SchoolID: school}, dir)
	ok, err = principal.CanAccessStudent(ctx, PermGradebookView, student, uuid.Nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = principal.CanAccessStudent(ctx, PermGradebookView, otherStudent, uuid.Nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAccessSchool(t *testing.T) {
	school := uuid.New()
	r := NewResolver(Principal{UserID: uuid.New(), Role: RoleFinanceOfficer, SchoolID: school}, nil)
	require.True(t, r.CanAccessSchool(PermFeesManage, school))
	require.False(t, r.CanAccessSchool(PermFeesManage, uuid.New()))
	require.False(t, r.CanAccessSchool(PermGradesApprove, school))

	// Principals without a school assignment fail closed.
	unassigned := NewResolver(Principal{UserID: uuid.New(), Role: RolePrincipal}, nil)
	require.False(t, unassigned.CanAccessSchool(PermGradebookView, school))
}
