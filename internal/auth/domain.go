package auth

import (
	"time"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Account represents a user account eligible to authenticate.
type Account struct {
	ID             string
	Email          string
	Name           string
	PasswordHash   string
	Role           shared.Role
	OrganizationID string
	InstanceID     string
	ProjectID      string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
