package auth

import (
	"log/slog"
	"net/http"

	"github.com/clarion-qa/clarion/internal/platform/httpx"
	"github.com/clarion-qa/clarion/internal/shared"
)

// Middleware verifies the bearer credential and attaches the principal.
type Middleware struct {
	Tokens *TokenManager
	Logger *slog.Logger
}

// Authenticate fails closed: a protected route is never reached without a
// verified principal. It runs after rate limiting and before tenant-scope
// attachment and permission guards.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		token, ok := BearerToken(header)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		principal, err := m.Tokens.Verify(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("credential rejected", slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
