package audits_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarion-qa/clarion/internal/audits"
	"github.com/clarion-qa/clarion/internal/shared"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[string]audits.Audit
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]audits.Audit)}
}

func (r *memoryRepo) Create(ctx context.Context, audit audits.Audit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[audit.ID] = audit
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*audits.Audit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &a, nil
}

func (r *memoryRepo) List(ctx context.Context, filter audits.Filter, page shared.Pagination) ([]audits.Audit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audits.Audit
	for _, a := range r.items {
		if filter.InstanceID != "" && a.InstanceID != filter.InstanceID {
			continue
		}
		if filter.AgentID != "" && a.AgentID != filter.AgentID {
			continue
		}
		if filter.AuditorID != "" && a.AuditorID != filter.AuditorID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// stubLedger mimics the credit ledger: a fixed allotment consumed under a
// mutex, with idempotency key dedupe.
type stubLedger struct {
	mu        sync.Mutex
	remaining int64
	unlimited bool
	keys      map[string]struct{}
	consumed  int
}

func newStubLedger(remaining int64) *stubLedger {
	return &stubLedger{remaining: remaining, keys: make(map[string]struct{})}
}

func (l *stubLedger) CheckAuditCredit(ctx context.Context, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.unlimited && l.remaining <= 0 {
		return shared.ErrInsufficientCredit
	}
	return nil
}

func (l *stubLedger) ConsumeAuditCredit(ctx context.Context, instanceID string, tokens int64, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.keys[key]; dup {
		return nil
	}
	if !l.unlimited && l.remaining <= 0 {
		return shared.ErrInsufficientCredit
	}
	l.keys[key] = struct{}{}
	if !l.unlimited {
		l.remaining--
	}
	l.consumed++
	return nil
}

func validRequest() audits.CreateRequest {
	return audits.CreateRequest{
		InstanceID: "inst-1",
		CallID:     "call-1",
		AgentID:    "agent-1",
		AuditorID:  "auditor-1",
		Score:      87.5,
		TokensUsed: 1200,
		Notes:      "greeting skipped",
	}
}

func TestCreateBillsOneCredit(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newStubLedger(5)
	service := audits.NewService(repo, ledger, nil)

	audit, err := service.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, audit.ID)
	require.Equal(t, 1, ledger.consumed)
	require.EqualValues(t, 4, ledger.remaining)
}

func TestCreateFailsFastWhenExhausted(t *testing.T) {
	repo := newMemoryRepo()
	service := audits.NewService(repo, newStubLedger(0), nil)

	_, err := service.Create(context.Background(), validRequest())
	require.ErrorIs(t, err, shared.ErrInsufficientCredit)
	require.Empty(t, repo.items, "no audit row without a billed credit")
}

func TestCreateUnwindsRowWhenBillingLosesRace(t *testing.T) {
	repo := newMemoryRepo()
	service := audits.NewService(repo, &racingLedger{inner: newStubLedger(1)}, nil)

	_, err := service.Create(context.Background(), validRequest())
	require.ErrorIs(t, err, shared.ErrInsufficientCredit)
	require.Empty(t, repo.items, "losing create must not leave a row")
}

// racingLedger passes the check but drains the allotment before consume,
// modelling a concurrent winner between the two calls.
type racingLedger struct {
	inner *stubLedger
}

func (l *racingLedger) CheckAuditCredit(ctx context.Context, instanceID string) error {
	if err := l.inner.CheckAuditCredit(ctx, instanceID); err != nil {
		return err
	}
	l.inner.mu.Lock()
	l.inner.remaining = 0
	l.inner.mu.Unlock()
	return nil
}

func (l *racingLedger) ConsumeAuditCredit(ctx context.Context, instanceID string, tokens int64, key string) error {
	return l.inner.ConsumeAuditCredit(ctx, instanceID, tokens, key)
}

func TestCreateValidation(t *testing.T) {
	service := audits.NewService(newMemoryRepo(), newStubLedger(5), nil)

	req := validRequest()
	req.CallID = ""
	_, err := service.Create(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = validRequest()
	req.Score = 140
	_, err = service.Create(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetScopedToInstance(t *testing.T) {
	repo := newMemoryRepo()
	service := audits.NewService(repo, newStubLedger(5), nil)

	audit, err := service.Create(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := service.Get(context.Background(), audit.ID, "inst-1")
	require.NoError(t, err)
	require.Equal(t, audit.ID, got.ID)

	// A caller scoped to another instance sees nothing, not a 403.
	_, err = service.Get(context.Background(), audit.ID, "inst-2")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFiltersByAgent(t *testing.T) {
	repo := newMemoryRepo()
	service := audits.NewService(repo, newStubLedger(10), nil)

	for _, agent := range []string{"agent-1", "agent-1", "agent-2"} {
		req := validRequest()
		req.AgentID = agent
		req.CallID = "call-" + agent
		_, err := service.Create(context.Background(), req)
		require.NoError(t, err)
	}

	own, err := service.List(context.Background(), audits.Filter{InstanceID: "inst-1", AgentID: "agent-1"}, shared.Pagination{})
	require.NoError(t, err)
	require.Len(t, own, 2)

	all, err := service.List(context.Background(), audits.Filter{InstanceID: "inst-1"}, shared.Pagination{})
	require.NoError(t, err)
	require.Len(t, all, 3)
}
