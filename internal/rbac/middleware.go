package rbac

import (
	"log/slog"
	"net/http"

	"github.com/clarion-qa/clarion/internal/platform/httpx"
	"github.com/clarion-qa/clarion/internal/shared"
)

// DecisionObserver receives the outcome of every guard decision.
type DecisionObserver interface {
	RecordAuthzDecision(outcome string)
}

// Middleware wires authorization guards for HTTP handlers. It runs strictly
// after authentication and tenant-scope attachment; a request that reaches a
// guard without a principal is rejected, never passed through.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Observer DecisionObserver
}

// RequirePermissions ensures the principal holds ALL listed permissions.
func (m Middleware) RequirePermissions(perms ...shared.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				m.deny(w, r, shared.ErrUnauthenticated)
				return
			}
			if err := m.Resolver.Authorize(principal, perms...); err != nil {
				m.deny(w, r, err)
				return
			}
			m.allow()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles ensures the principal meets or exceeds ANY listed role.
func (m Middleware) RequireRoles(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				m.deny(w, r, shared.ErrUnauthenticated)
				return
			}
			if err := m.Resolver.AuthorizeRole(principal, roles...); err != nil {
				m.deny(w, r, err)
				return
			}
			m.allow()
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) allow() {
	if m.Observer != nil {
		m.Observer.RecordAuthzDecision("allow")
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, err error) {
	if m.Observer != nil {
		m.Observer.RecordAuthzDecision("deny")
	}
	if m.Logger != nil {
		m.Logger.Warn("authorization denied", slog.String("path", r.URL.Path), slog.Any("reason", err))
	}
	httpx.RespondError(w, err)
}
