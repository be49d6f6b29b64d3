package instances_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/instances"
	"github.com/clarion-qa/clarion/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[string]instances.Instance
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]instances.Instance)}
}

func (r *memoryRepo) Create(ctx context.Context, inst instances.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = inst.CreatedAt
	r.items[inst.ID] = inst
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*instances.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inst, nil
}

func (r *memoryRepo) ListByOrganization(ctx context.Context, organizationID string, page shared.Pagination) ([]instances.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []instances.Instance
	for _, inst := range r.items {
		if inst.OrganizationID == organizationID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r *memoryRepo) List(ctx context.Context, page shared.Pagination) ([]instances.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []instances.Instance
	for _, inst := range r.items {
		out = append(out, inst)
	}
	return out, nil
}

func (r *memoryRepo) Rename(ctx context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	inst.Name = name
	r.items[id] = inst
	return nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id string, status instances.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	inst.Status = status
	r.items[id] = inst
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type stubProvisioner struct {
	fail        bool
	provisioned map[string]int64
}

func (p *stubProvisioner) Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing credits.BillingType) error {
	if p.fail {
		return errors.New("ledger unavailable")
	}
	if p.provisioned == nil {
		p.provisioned = make(map[string]int64)
	}
	p.provisioned[instanceID] = totalAudits
	return nil
}

func TestProvisionCreatesInstanceAndBalance(t *testing.T) {
	repo := newMemoryRepo()
	prov := &stubProvisioner{}
	service := instances.NewService(repo, prov, nil)

	inst, err := service.Provision(context.Background(), instances.ProvisionRequest{
		OrganizationID: "org-1",
		Name:           "acme-support",
		TotalAudits:    500,
		TotalTokens:    credits.Unlimited,
	})
	require.NoError(t, err)
	require.NotEmpty(t, inst.ID)
	require.Equal(t, instances.StatusActive, inst.Status)
	require.EqualValues(t, 500, prov.provisioned[inst.ID])
}

func TestProvisionUnwindsOnLedgerFailure(t *testing.T) {
	repo := newMemoryRepo()
	service := instances.NewService(repo, &stubProvisioner{fail: true}, nil)

	_, err := service.Provision(context.Background(), instances.ProvisionRequest{
		OrganizationID: "org-1",
		Name:           "acme-support",
	})
	require.Error(t, err)

	// No instance row may survive a failed credit provision.
	list, err := repo.List(context.Background(), shared.Pagination{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestProvisionRequiresOrganization(t *testing.T) {
	service := instances.NewService(newMemoryRepo(), &stubProvisioner{}, nil)
	_, err := service.Provision(context.Background(), instances.ProvisionRequest{Name: "nameless"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSuspendAndResume(t *testing.T) {
	repo := newMemoryRepo()
	service := instances.NewService(repo, &stubProvisioner{}, nil)

	inst, err := service.Provision(context.Background(), instances.ProvisionRequest{
		OrganizationID: "org-1",
		Name:           "acme-support",
	})
	require.NoError(t, err)

	suspended, err := service.Suspend(context.Background(), inst.ID)
	require.NoError(t, err)
	require.True(t, suspended.Suspended())

	resumed, err := service.Resume(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Equal(t, instances.StatusActive, resumed.Status)
}

func TestListScopedByOrganization(t *testing.T) {
	repo := newMemoryRepo()
	service := instances.NewService(repo, &stubProvisioner{}, nil)

	for _, org := range []string{"org-1", "org-1", "org-2"} {
		_, err := service.Provision(context.Background(), instances.ProvisionRequest{
			OrganizationID: org,
			Name:           "instance-" + org,
		})
		require.NoError(t, err)
	}

	scoped, err := service.List(context.Background(), "org-1", shared.Pagination{})
	require.NoError(t, err)
	require.Len(t, scoped, 2)

	all, err := service.List(context.Background(), "", shared.Pagination{})
	require.NoError(t, err)
	require.Len(t, all, 3)
}
