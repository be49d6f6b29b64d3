package instances

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/shared"
)

// CreditProvisioner creates the credit balance that backs a new instance.
// Satisfied by credits.Service.
type CreditProvisioner interface {
	Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing credits.BillingType) error
}

// ProvisionRequest carries the inputs for a new instance.
type ProvisionRequest struct {
	OrganizationID string
	ProjectID      string
	Name           string
	Region         string
	TotalAudits    int64
	TotalTokens    int64
	BillingType    credits.BillingType
}

// Service provides business logic for instance lifecycle.
type Service struct {
	repo    Repository
	credits CreditProvisioner
	logger  *slog.Logger
}

// NewService constructs an instances service.
func NewService(repo Repository, creditProv CreditProvisioner, logger *slog.Logger) *Service {
	return &Service{repo: repo, credits: creditProv, logger: logger}
}

// Provision creates an instance together with its credit balance. The
// balance write is compensated: a failed provision removes the instance
// row again so no instance exists without a ledger entry.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (*Instance, error) {
	if req.OrganizationID == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: organization and name are required", shared.ErrValidation)
	}
	billing := req.BillingType
	if billing == "" {
		billing = credits.BillingPrepaid
	}

	inst := Instance{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		Region:         req.Region,
		Status:         StatusActive,
	}
	if err := s.repo.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	if err := s.credits.Provision(ctx, inst.ID, req.TotalAudits, req.TotalTokens, billing); err != nil {
		if delErr := s.repo.Delete(ctx, inst.ID); delErr != nil && s.logger != nil {
			s.logger.Error("orphaned instance after failed credit provision",
				slog.String("instance", inst.ID), slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("provision credits: %w", err)
	}
	return s.repo.Get(ctx, inst.ID)
}

// Get retrieves an instance by ID.
func (s *Service) Get(ctx context.Context, id string) (*Instance, error) {
	return s.repo.Get(ctx, id)
}

// List returns instances visible to the caller. An empty organizationID
// lists across all organizations.
func (s *Service) List(ctx context.Context, organizationID string, page shared.Pagination) ([]Instance, error) {
	if page.PerPage <= 0 {
		page = shared.NewPagination(page.Page, 0, 0)
	}
	if organizationID == "" {
		return s.repo.List(ctx, page)
	}
	return s.repo.ListByOrganization(ctx, organizationID, page)
}

// Rename updates the display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*Instance, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Suspend blocks the instance from serving requests.
func (s *Service) Suspend(ctx context.Context, id string) (*Instance, error) {
	return s.setStatus(ctx, id, StatusSuspended)
}

// Resume reactivates a suspended instance.
func (s *Service) Resume(ctx context.Context, id string) (*Instance, error) {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, id string, status Status) (*Instance, error) {
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
