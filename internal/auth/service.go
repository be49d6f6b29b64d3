package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(account)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(s.tokens.TTL()), nil
}
