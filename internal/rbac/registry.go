// Package rbac implements the static role/permission authorization core.
// Tables are fixed at process start and never mutated, so lookups are safe
// for unlimited concurrent readers.
package rbac

import (
	"fmt"

	"github.com/clarion-qa/clarion/internal/shared"
)

// roleLevels positions every role in the linear hierarchy.
var roleLevels = map[shared.Role]int{
	shared.RoleAgent:       10,
	shared.RoleAuditor:     30,
	shared.RoleQAAnalyst:   40,
	shared.RoleManager:     60,
	shared.RoleClientAdmin: 80,
	shared.RoleSuperAdmin:  100,
}

// rolePermissions maps every role to its granted capabilities.
// super_admin is granted the full permission set.
var rolePermissions = map[shared.Role][]shared.Permission{
	shared.RoleAgent: {
		shared.PermViewOwnAudits,
	},
	shared.RoleAuditor: {
		shared.PermPerformAudit,
		shared.PermViewOwnAudits,
	},
	shared.RoleQAAnalyst: {
		shared.PermPerformAudit,
		shared.PermViewOwnAudits,
		shared.PermViewAllAudits,
		shared.PermViewReports,
	},
	shared.RoleManager: {
		shared.PermPerformAudit,
		shared.PermViewOwnAudits,
		shared.PermViewAllAudits,
		shared.PermViewReports,
		shared.PermManageUsers,
	},
	shared.RoleClientAdmin: {
		shared.PermPerformAudit,
		shared.PermViewOwnAudits,
		shared.PermViewAllAudits,
		shared.PermViewReports,
		shared.PermManageUsers,
		shared.PermManageRoles,
		shared.PermManageCredits,
	},
	shared.RoleSuperAdmin: shared.AllPermissions(),
}

// Registry answers level and permission lookups for the fixed role tables.
type Registry struct {
	levels      map[shared.Role]int
	permissions map[shared.Role]map[shared.Permission]struct{}
}

// NewRegistry builds the registry from the static tables.
func NewRegistry() *Registry {
	levels := make(map[shared.Role]int, len(roleLevels))
	for role, level := range roleLevels {
		levels[role] = level
	}
	permissions := make(map[shared.Role]map[shared.Permission]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[shared.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		permissions[role] = set
	}
	return &Registry{levels: levels, permissions: permissions}
}

// Validate checks the static tables for well-formedness. It is called once at
// startup; a failure here is a configuration error and fatal.
func (r *Registry) Validate() error {
	defined := make(map[shared.Permission]struct{})
	for _, p := range shared.AllPermissions() {
		defined[p] = struct{}{}
	}
	for role := range r.levels {
		perms, ok := r.permissions[role]
		if !ok || len(perms) == 0 {
			return fmt.Errorf("rbac: role %s has no permissions: %w", role, shared.ErrUnknownRole)
		}
	}
	for role, perms := range r.permissions {
		if _, ok := r.levels[role]; !ok {
			return fmt.Errorf("rbac: role %s has no hierarchy level: %w", role, shared.ErrUnknownRole)
		}
		for p := range perms {
			if _, ok := defined[p]; !ok {
				return fmt.Errorf("rbac: role %s grants %s: %w", role, p, shared.ErrUnknownPermission)
			}
		}
	}
	for _, p := range shared.AllPermissions() {
		if _, ok := r.permissions[shared.RoleSuperAdmin][p]; !ok {
			return fmt.Errorf("rbac: super_admin missing %s: %w", p, shared.ErrUnknownPermission)
		}
	}
	return nil
}

// LevelOf returns the hierarchy level for a role.
func (r *Registry) LevelOf(role shared.Role) (int, error) {
	level, ok := r.levels[role]
	if !ok {
		return 0, fmt.Errorf("rbac: %s: %w", role, shared.ErrUnknownRole)
	}
	return level, nil
}

// PermissionsOf returns the permission set granted to a role.
func (r *Registry) PermissionsOf(role shared.Role) ([]shared.Permission, error) {
	set, ok := r.permissions[role]
	if !ok {
		return nil, fmt.Errorf("rbac: %s: %w", role, shared.ErrUnknownRole)
	}
	perms := make([]shared.Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	return perms, nil
}

// Roles lists every defined role.
func (r *Registry) Roles() []shared.Role {
	roles := make([]shared.Role, 0, len(r.levels))
	for role := range r.levels {
		roles = append(roles, role)
	}
	return roles
}

func (r *Registry) grants(role shared.Role, perm shared.Permission) bool {
	set, ok := r.permissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}
