package shared

import "context"

// Principal describes the authenticated caller for the duration of one
// request. It is built from a verified credential and never persisted.
type Principal struct {
	UserID         string
	Role           Role
	OrganizationID string
	InstanceID     string
	ProjectID      string
}

// HasRole reports whether a role was assigned at authentication time.
func (p *Principal) HasRole() bool {
	return p != nil && p.Role != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when the
// request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
