package credits_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/shared"
	_ "github.com/clarion-qa/clarion/internal/testing/guard"
)

type memoryRepo struct {
	mu       sync.Mutex
	balances map[string]*credits.Balance
	orgs     map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]*credits.Balance), orgs: make(map[string]string)}
}

func (r *memoryRepo) tagOrganization(instanceID, organizationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[instanceID] = organizationID
}

func (r *memoryRepo) GetBalance(ctx context.Context, instanceID string) (*credits.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[instanceID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memoryRepo) Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing credits.BillingType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[instanceID] = &credits.Balance{
		InstanceID:  instanceID,
		TotalAudits: totalAudits,
		TotalTokens: totalTokens,
		BillingType: billing,
		UpdatedAt:   time.Now(),
	}
	return nil
}

func (r *memoryRepo) ConsumeAudit(ctx context.Context, instanceID string, tokens int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[instanceID]
	if !ok {
		return shared.ErrNotFound
	}
	if b.TotalAudits != credits.Unlimited && b.UsedAudits >= b.TotalAudits {
		return shared.ErrInsufficientCredit
	}
	b.UsedAudits++
	b.UsedTokens += tokens
	return nil
}

func (r *memoryRepo) TopUp(ctx context.Context, instanceID string, audits, tokens int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[instanceID]
	if !ok {
		return shared.ErrNotFound
	}
	if b.TotalAudits != credits.Unlimited {
		b.TotalAudits += audits
	}
	if b.TotalTokens != credits.Unlimited {
		b.TotalTokens += tokens
	}
	return nil
}

func (r *memoryRepo) ResetUsage(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[instanceID]
	if !ok {
		return shared.ErrNotFound
	}
	b.UsedAudits = 0
	b.UsedTokens = 0
	return nil
}

func (r *memoryRepo) AddAPICalls(ctx context.Context, instanceID string, calls int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[instanceID]
	if !ok {
		return shared.ErrNotFound
	}
	b.APICalls += calls
	return nil
}

func (r *memoryRepo) ListBalances(ctx context.Context) ([]credits.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []credits.Balance
	for _, b := range r.balances {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRepo) ListBalancesByOrganization(ctx context.Context, organizationID string) ([]credits.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []credits.Balance
	for id, b := range r.balances {
		if r.orgs[id] == organizationID {
			out = append(out, *b)
		}
	}
	return out, nil
}

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: make(map[string]struct{})}
}

func (g *memoryGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	g.keys[key] = struct{}{}
	return nil
}

func (g *memoryGuard) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func newService(t *testing.T, repo credits.Repository) *credits.Service {
	t.Helper()
	return credits.NewService(repo, nil, newMemoryGuard(), nil, credits.ServiceConfig{})
}

func TestCheckAuditCreditAtCeiling(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "inst-1", 100, 50000, credits.BillingPrepaid))
	service := newService(t, repo)

	// 99 of 100 used: still allowed.
	for i := 0; i < 99; i++ {
		require.NoError(t, repo.ConsumeAudit(ctx, "inst-1", 10))
	}
	require.NoError(t, service.CheckAuditCredit(ctx, "inst-1"))

	require.NoError(t, service.ConsumeAuditCredit(ctx, "inst-1", 10, "audit-100"))

	balance, err := service.Balance(ctx, "inst-1")
	require.NoError(t, err)
	require.EqualValues(t, 100, balance.UsedAudits)

	err = service.CheckAuditCredit(ctx, "inst-1")
	require.ErrorIs(t, err, shared.ErrInsufficientCredit)
}

func TestUnlimitedSentinelNeverExhausts(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "inst-2", credits.Unlimited, credits.Unlimited, credits.BillingSubscription))
	service := newService(t, repo)

	for i := 0; i < 500; i++ {
		require.NoError(t, repo.ConsumeAudit(ctx, "inst-2", 1))
	}
	require.NoError(t, service.CheckAuditCredit(ctx, "inst-2"))

	low, err := service.LowBalance(ctx, "inst-2")
	require.NoError(t, err)
	require.False(t, low)
}

func TestConsumeAuditCreditIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "inst-3", 10, 1000, credits.BillingPrepaid))
	service := newService(t, repo)

	// The same logical call delivered three times bills once.
	for i := 0; i < 3; i++ {
		require.NoError(t, service.ConsumeAuditCredit(ctx, "inst-3", 25, "call-abc"))
	}

	balance, err := service.Balance(ctx, "inst-3")
	require.NoError(t, err)
	require.EqualValues(t, 1, balance.UsedAudits)
	require.EqualValues(t, 25, balance.UsedTokens)
}

func TestConsumeAuditCreditConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	const remaining = 20
	require.NoError(t, repo.Provision(ctx, "inst-4", remaining, credits.Unlimited, credits.BillingPrepaid))
	service := newService(t, repo)

	const callers = remaining + 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- service.ConsumeAuditCredit(ctx, "inst-4", 1, fmt.Sprintf("concurrent-%d", n))
		}(i)
	}
	wg.Wait()
	close(errs)

	var denied int
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrInsufficientCredit)
			denied++
		}
	}
	require.Equal(t, callers-remaining, denied)

	balance, err := service.Balance(ctx, "inst-4")
	require.NoError(t, err)
	require.EqualValues(t, remaining, balance.UsedAudits, "no lost updates and no overshoot")
}

func TestLowBalanceThreshold(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "inst-5", 100, credits.Unlimited, credits.BillingPrepaid))
	service := newService(t, repo)

	for i := 0; i < 79; i++ {
		require.NoError(t, repo.ConsumeAudit(ctx, "inst-5", 0))
	}
	low, err := service.LowBalance(ctx, "inst-5")
	require.NoError(t, err)
	require.False(t, low, "79%% used is above the 20%% remaining threshold")

	require.NoError(t, repo.ConsumeAudit(ctx, "inst-5", 0))
	low, err = service.LowBalance(ctx, "inst-5")
	require.NoError(t, err)
	require.True(t, low, "80%% used hits the threshold")
}

func TestRecordAndFlushAPICalls(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "inst-6", 10, 100, credits.BillingPrepaid))
	service := credits.NewService(repo, client, newMemoryGuard(), nil, credits.ServiceConfig{})

	for i := 0; i < 5; i++ {
		service.RecordAPICall(ctx, "inst-6")
	}
	require.NoError(t, service.FlushAPICalls(ctx))

	balance, err := service.Balance(ctx, "inst-6")
	require.NoError(t, err)
	require.EqualValues(t, 5, balance.APICalls)

	// Counter drained: a second flush is a no-op.
	require.NoError(t, service.FlushAPICalls(ctx))
	balance, err = service.Balance(ctx, "inst-6")
	require.NoError(t, err)
	require.EqualValues(t, 5, balance.APICalls)
}

func TestLowBalancesScan(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "low", 10, 100, credits.BillingPrepaid))
	require.NoError(t, repo.Provision(ctx, "healthy", 10, 100, credits.BillingPrepaid))
	require.NoError(t, repo.Provision(ctx, "unlimited", credits.Unlimited, credits.Unlimited, credits.BillingSubscription))
	service := newService(t, repo)

	for i := 0; i < 9; i++ {
		require.NoError(t, repo.ConsumeAudit(ctx, "low", 0))
	}
	require.NoError(t, repo.ConsumeAudit(ctx, "healthy", 0))

	low, err := service.LowBalances(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "low", low[0].InstanceID)
}

func TestUsageReportScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	require.NoError(t, repo.Provision(ctx, "acme-1", 10, 100, credits.BillingPrepaid))
	require.NoError(t, repo.Provision(ctx, "acme-2", 10, 100, credits.BillingPrepaid))
	require.NoError(t, repo.Provision(ctx, "globex-1", 10, 100, credits.BillingPrepaid))
	repo.tagOrganization("acme-1", "org-acme")
	repo.tagOrganization("acme-2", "org-acme")
	repo.tagOrganization("globex-1", "org-globex")
	service := newService(t, repo)

	report, err := service.UsageReport(ctx, "org-acme")
	require.NoError(t, err)
	require.Len(t, report, 2)

	all, err := service.UsageReport(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestConsumeUnknownInstance(t *testing.T) {
	service := newService(t, newMemoryRepo())
	err := service.ConsumeAuditCredit(context.Background(), "ghost", 1, "")
	require.True(t, errors.Is(err, shared.ErrNotFound))
}
