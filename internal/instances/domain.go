package instances

import "time"

// Status tracks the lifecycle of a tenant instance.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Instance is a tenant deployment owned by an organization. Every audit,
// user, and credit balance hangs off exactly one instance.
type Instance struct {
	ID             string
	OrganizationID string
	ProjectID      string
	Name           string
	Region         string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Suspended reports whether the instance is blocked from serving requests.
func (i Instance) Suspended() bool {
	return i.Status == StatusSuspended
}
