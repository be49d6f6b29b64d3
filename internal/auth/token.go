package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Claims carries the principal fields inside a signed token. Tenant
// affiliations are embedded at issue time so request handling never has to
// consult storage to scope data access.
type Claims struct {
	Role           string `json:"role,omitempty"`
	OrganizationID string `json:"org_id,omitempty"`
	InstanceID     string `json:"instance_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HMAC-signed bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, issuer: "clarion"}
}

// TTL exposes the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the account.
func (m *TokenManager) Issue(account *Account) (string, error) {
	if account == nil {
		return "", errors.New("auth: account required")
	}
	now := time.Now()
	claims := &Claims{
		Role:           string(account.Role),
		OrganizationID: account.OrganizationID,
		InstanceID:     account.InstanceID,
		ProjectID:      account.ProjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks the token signature and expiry and projects the principal.
func (m *TokenManager) Verify(tokenString string) (*shared.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, shared.ErrUnauthenticated
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, shared.ErrUnauthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, shared.ErrUnauthenticated
	}
	return &shared.Principal{
		UserID:         claims.Subject,
		Role:           shared.Role(claims.Role),
		OrganizationID: claims.OrganizationID,
		InstanceID:     claims.InstanceID,
		ProjectID:      claims.ProjectID,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
