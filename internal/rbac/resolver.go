package rbac

import (
	"fmt"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Resolver decides allow/deny for principals against required permissions
// and roles. It is pure and synchronous; decisions are terminal and never
// downgraded by callers.
type Resolver struct {
	registry *Registry
}

// NewResolver constructs a Resolver over the given registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// HasPermission reports whether the role grants the permission.
// super_admin holds every permission.
func (r *Resolver) HasPermission(role shared.Role, perm shared.Permission) bool {
	if role == shared.RoleSuperAdmin {
		return true
	}
	return r.registry.grants(role, perm)
}

// HasEqualOrHigherRole reports whether a sits at or above b in the hierarchy.
// Unknown roles never satisfy the comparison.
func (r *Resolver) HasEqualOrHigherRole(a, b shared.Role) bool {
	levelA, err := r.registry.LevelOf(a)
	if err != nil {
		return false
	}
	levelB, err := r.registry.LevelOf(b)
	if err != nil {
		return false
	}
	return levelA >= levelB
}

// Authorize denies unless the principal holds every required permission.
// An empty requirement set never blocks. A principal without a role is
// denied before any permission check.
func (r *Resolver) Authorize(p *shared.Principal, required ...shared.Permission) error {
	if len(required) == 0 {
		return nil
	}
	if !p.HasRole() {
		return shared.ErrNoRoleAssigned
	}
	if p.Role == shared.RoleSuperAdmin {
		return nil
	}
	for _, perm := range required {
		if !r.HasPermission(p.Role, perm) {
			return fmt.Errorf("%w: %s", shared.ErrInsufficientPermission, perm)
		}
	}
	return nil
}

// AuthorizeRole allows when the principal meets or exceeds ANY of the
// required roles; a manager satisfies a manager-or-above requirement.
func (r *Resolver) AuthorizeRole(p *shared.Principal, required ...shared.Role) error {
	if len(required) == 0 {
		return nil
	}
	if !p.HasRole() {
		return shared.ErrNoRoleAssigned
	}
	if p.Role == shared.RoleSuperAdmin {
		return nil
	}
	for _, role := range required {
		if r.HasEqualOrHigherRole(p.Role, role) {
			return nil
		}
	}
	return fmt.Errorf("%w: requires one of %v", shared.ErrInsufficientRole, required)
}
