package shared

// Role is a named bundle of permissions with a position in a linear hierarchy.
type Role string

// Platform roles, ordered from lowest to highest.
const (
	RoleAgent       Role = "agent"
	RoleAuditor     Role = "auditor"
	RoleQAAnalyst   Role = "qa_analyst"
	RoleManager     Role = "manager"
	RoleClientAdmin Role = "client_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Permission is a fine-grained capability granted through a role.
type Permission string

// Platform permissions.
const (
	PermManageUsers     Permission = "manage_users"
	PermManageRoles     Permission = "manage_roles"
	PermPerformAudit    Permission = "perform_audit"
	PermViewOwnAudits   Permission = "view_own_audits"
	PermViewAllAudits   Permission = "view_all_audits"
	PermManageCredits   Permission = "manage_credits"
	PermManageInstances Permission = "manage_instances"
	PermViewReports     Permission = "view_reports"
	PermSSHAccess       Permission = "ssh_access"
)

// AllPermissions lists every defined permission.
func AllPermissions() []Permission {
	return []Permission{
		PermManageUsers,
		PermManageRoles,
		PermPerformAudit,
		PermViewOwnAudits,
		PermViewAllAudits,
		PermManageCredits,
		PermManageInstances,
		PermViewReports,
		PermSSHAccess,
	}
}
