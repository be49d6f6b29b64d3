// Package tenant derives per-request tenant scoping from the authenticated
// principal. The scope is a pure projection of the signed credential; no
// storage is consulted, trading a staleness window until the next credential
// refresh for a zero-cost resolution.
package tenant

import "github.com/clarion-qa/clarion/internal/shared"

// Scope narrows data access to the caller's tenant affiliations.
// All fields are optional; an empty scope means no tenant restriction.
type Scope struct {
	OrganizationID string
	InstanceID     string
	ProjectID      string
}

// IsEmpty reports whether the scope restricts nothing.
func (s Scope) IsEmpty() bool {
	return s.OrganizationID == "" && s.InstanceID == "" && s.ProjectID == ""
}

// Resolve projects the tenant scope from a principal. A nil principal
// (public route) yields an empty scope.
func Resolve(p *shared.Principal) Scope {
	if p == nil {
		return Scope{}
	}
	return Scope{
		OrganizationID: p.OrganizationID,
		InstanceID:     p.InstanceID,
		ProjectID:      p.ProjectID,
	}
}
