package users

import (
	"time"

	"github.com/clarion-qa/clarion/internal/shared"
)

// User is an account that can sign in and act inside one instance.
type User struct {
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
