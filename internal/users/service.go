package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
)

// CreateRequest carries the inputs for a new user.
type CreateRequest struct {
	Email          string
	Name           string
	Password       string
	Role           shared.Role
	OrganizationID string
	InstanceID     string
	ProjectID      string
}

// Service provides business logic for user management.
type Service struct {
	repo     Repository
	registry *rbac.Registry
}

// NewService constructs a users service. The registry vets every role
// written through this service; unknown roles never reach storage.
func NewService(repo Repository, registry *rbac.Registry) *Service {
	return &Service{repo: repo, registry: registry}
}

// Create hashes the password and stores the user.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	if req.Email == "" || req.Password == "" || req.InstanceID == "" {
		return nil, fmt.Errorf("%w: email, password, and instance are required", shared.ErrValidation)
	}
	if _, err := s.registry.LevelOf(req.Role); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, req.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Name:           req.Name,
		PasswordHash:   string(hash),
		Role:           req.Role,
		OrganizationID: req.OrganizationID,
		InstanceID:     req.InstanceID,
		ProjectID:      req.ProjectID,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, user.ID)
}

// Get retrieves a user scoped to an instance. An empty instanceID skips
// the scope check; reserved for super admin callers.
func (s *Service) Get(ctx context.Context, id, instanceID string) (*User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instanceID != "" && user.InstanceID != instanceID {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

// List returns users inside one instance.
func (s *Service) List(ctx context.Context, instanceID string, page shared.Pagination) ([]User, error) {
	if page.PerPage <= 0 {
		page = shared.NewPagination(page.Page, 0, 0)
	}
	return s.repo.ListByInstance(ctx, instanceID, page)
}

// AssignRole replaces the user's role. The actor can never hand out a
// role above their own; a manager cannot mint a client_admin.
func (s *Service) AssignRole(ctx context.Context, actor *shared.Principal, userID, instanceID string, role shared.Role) (*User, error) {
	targetLevel, err := s.registry.LevelOf(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, role)
	}
	actorLevel, err := s.registry.LevelOf(actor.Role)
	if err != nil {
		return nil, shared.ErrNoRoleAssigned
	}
	if actor.Role != shared.RoleSuperAdmin && targetLevel > actorLevel {
		return nil, fmt.Errorf("%w: cannot assign a role above your own", shared.ErrInsufficientRole)
	}

	user, err := s.Get(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, user.ID)
}

// Deactivate blocks a user from signing in.
func (s *Service) Deactivate(ctx context.Context, userID, instanceID string) (*User, error) {
	user, err := s.Get(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, user.ID, false); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, user.ID)
}

// Reactivate restores a deactivated user.
func (s *Service) Reactivate(ctx context.Context, userID, instanceID string) (*User, error) {
	user, err := s.Get(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, user.ID, true); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, user.ID)
}
