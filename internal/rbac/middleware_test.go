package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(p *shared.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/audits", nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	}
	return req
}

func TestRequirePermissionsWithoutPrincipal(t *testing.T) {
	mw := rbac.Middleware{Resolver: newResolver(t)}
	handler := mw.RequirePermissions(shared.PermViewAllAudits)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequirePermissionsDenied(t *testing.T) {
	mw := rbac.Middleware{Resolver: newResolver(t)}
	handler := mw.RequirePermissions(shared.PermManageCredits)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(principalWith(shared.RoleQAAnalyst)))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequirePermissionsAllowed(t *testing.T) {
	mw := rbac.Middleware{Resolver: newResolver(t)}
	handler := mw.RequirePermissions(shared.PermPerformAudit)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(principalWith(shared.RoleAuditor)))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestRequireRolesAnyOf(t *testing.T) {
	mw := rbac.Middleware{Resolver: newResolver(t)}
	handler := mw.RequireRoles(shared.RoleManager, shared.RoleClientAdmin)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(principalWith(shared.RoleManager)))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(principalWith(shared.RoleAgent)))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireNoRoleAssigned(t *testing.T) {
	mw := rbac.Middleware{Resolver: newResolver(t)}
	handler := mw.RequirePermissions(shared.PermViewOwnAudits)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestAs(&shared.Principal{UserID: "u-3"}))
	require.Equal(t, http.StatusForbidden, res.Code)
}
