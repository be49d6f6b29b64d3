package tenant

import (
	"net/http"

	"github.com/clarion-qa/clarion/internal/shared"
)

// AttachScope resolves the tenant scope from the authenticated principal and
// attaches it for downstream query filters. It must run after authentication
// and before any permission guard; unauthenticated requests pass through
// without a scope.
func AttachScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if p := shared.PrincipalFromContext(ctx); p != nil {
			ctx = ContextWithScope(ctx, Resolve(p))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
