package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clarion-qa/clarion/internal/auth"
	"github.com/clarion-qa/clarion/internal/shared"
)

func testAccount() *auth.Account {
	return &auth.Account{
		ID:             "u-42",
		Email:          "auditor@tenant.test",
		Role:           shared.RoleAuditor,
		OrganizationID: "org-7",
		InstanceID:     "inst-7",
		ProjectID:      "proj-7",
		IsActive:       true,
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)

	signed, err := tokens.Issue(testAccount())
	require.NoError(t, err)

	principal, err := tokens.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "u-42", principal.UserID)
	require.Equal(t, shared.RoleAuditor, principal.Role)
	require.Equal(t, "org-7", principal.OrganizationID)
	require.Equal(t, "inst-7", principal.InstanceID)
	require.Equal(t, "proj-7", principal.ProjectID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := auth.NewTokenManager("secret-a", time.Hour).Issue(testAccount())
	require.NoError(t, err)

	_, err = auth.NewTokenManager("secret-b", time.Hour).Verify(signed)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret", -time.Minute)
	signed, err := tokens.Issue(testAccount())
	require.NoError(t, err)

	_, err = tokens.Verify(signed)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	_, err := tokens.Verify("not-a-token")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	token, ok := auth.BearerToken("Bearer abc.def.ghi")
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", token)

	_, ok = auth.BearerToken("Basic dXNlcjpwYXNz")
	require.False(t, ok)

	_, ok = auth.BearerToken("Bearer ")
	require.False(t, ok)

	_, ok = auth.BearerToken("")
	require.False(t, ok)
}
