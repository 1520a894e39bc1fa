package authz

// Permission keys. Keys are static; nothing creates or destroys them at
// runtime.
const (
	PermGradebookView  = "gradebook.view"
	PermGradesEdit     = "grades.edit"
	PermGradesSubmit   = "grades.submit"
	PermGradesApprove  = "grades.approve"
	PermGradesRelease  = "grades.release"
	PermGradesOverride = "grades.override"

	PermUsersManage = "users.manage"
	PermUsersView   = "users.view"

	PermSchoolsManage  = "schools.manage"
	PermSchoolsViewAll = "schools.view_all"

	PermFeesView   = "fees.view"
	PermFeesManage = "fees.manage"

	PermAuditView = "audit.view"
)

// PermissionKeys lists every defined permission key.
func PermissionKeys() []string {
	return []string{
		PermGradebookView,
		PermGradesEdit,
		PermGradesSubmit,
		PermGradesApprove,
		PermGradesRelease,
		PermGradesOverride,
		PermUsersManage,
		PermUsersView,
		PermSchoolsManage,
		PermSchoolsViewAll,
		PermFeesView,
		PermFeesManage,
		PermAuditView,
	}
}

// grants maps each role to its permissions and the scope each is granted at.
// RoleSystemAdmin is absent on purpose: it short-circuits in Resolve.
var grants = map[Role]map[string]Scope{
	RolePrincipal: {
		PermGradebookView:  ScopeSchool,
		PermGradesApprove:  ScopeSchool,
		PermGradesRelease:  ScopeSchool,
		PermGradesOverride: ScopeSchool,
		PermGradesEdit:     ScopeSchool,
		PermUsersManage:    ScopeSchool,
		PermUsersView:      ScopeSchool,
		PermFeesView:       ScopeSchool,
		PermAuditView:      ScopeSchool,
	},
	RoleSchoolOwner: {
		PermGradebookView: ScopeSchool,
		PermUsersView:     ScopeSchool,
		PermFeesView:      ScopeSchool,
		PermAuditView:     ScopeSchool,
	},
	RoleTeacher: {
		PermGradebookView: ScopeClass,
		PermGradesEdit:    ScopeOwn,
		PermGradesSubmit:  ScopeOwn,
	},
	RoleParent: {
		PermGradebookView: ScopeOwn,
		PermFeesView:      ScopeOwn,
	},
	RoleFinanceOfficer: {
		PermFeesView:   ScopeSchool,
		PermFeesManage: ScopeSchool,
		PermUsersView:  ScopeSchool,
	},
}
