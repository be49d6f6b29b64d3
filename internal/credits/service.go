package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/clarion-qa/clarion/internal/shared"
)

const apiCallKeyPrefix = "usage:apicalls:"

// IdempotencyGuard deduplicates billable operations delivered at-least-once.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig tunes ledger behaviour.
type ServiceConfig struct {
	// LowBalanceThreshold is the remaining credit fraction at or below which
	// a balance is flagged for advisory alerts. Defaults to 0.20.
	LowBalanceThreshold float64
}

// Service orchestrates the credit ledger.
type Service struct {
	repo        Repository
	counters    *redis.Client
	idempotency IdempotencyGuard
	logger      *slog.Logger
	threshold   float64
}

// NewService constructs a Service.
func NewService(repo Repository, counters *redis.Client, idempotency IdempotencyGuard, logger *slog.Logger, cfg ServiceConfig) *Service {
	threshold := cfg.LowBalanceThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.20
	}
	return &Service{repo: repo, counters: counters, idempotency: idempotency, logger: logger, threshold: threshold}
}

// Balance returns the current balance for an instance.
func (s *Service) Balance(ctx context.Context, instanceID string) (*Balance, error) {
	return s.repo.GetBalance(ctx, instanceID)
}

// Provision creates the balance for a new instance.
func (s *Service) Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing BillingType) error {
	return s.repo.Provision(ctx, instanceID, totalAudits, totalTokens, billing)
}

// CheckAuditCredit rejects with ErrInsufficientCredit when the instance has
// exhausted its audit allotment. Unlimited balances always pass.
func (s *Service) CheckAuditCredit(ctx context.Context, instanceID string) error {
	balance, err := s.repo.GetBalance(ctx, instanceID)
	if err != nil {
		return err
	}
	if balance.AuditsExhausted() {
		return fmt.Errorf("%w: %d of %d audits used", shared.ErrInsufficientCredit, balance.UsedAudits, balance.TotalAudits)
	}
	return nil
}

// ConsumeAuditCredit applies exactly one audit plus the token count for a
// logical billable call. Callers may deliver at-least-once; the idempotency
// key guarantees a retried delivery is a no-op instead of a double charge.
func (s *Service) ConsumeAuditCredit(ctx context.Context, instanceID string, tokens int64, idempotencyKey string) error {
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "credits"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				if s.logger != nil {
					s.logger.Info("duplicate credit consumption skipped", slog.String("instance", instanceID), slog.String("key", idempotencyKey))
				}
				return nil
			}
			return err
		}
	}
	if err := s.repo.ConsumeAudit(ctx, instanceID, tokens); err != nil {
		if idempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil && s.logger != nil {
				s.logger.Error("idempotency rollback failed", slog.String("key", idempotencyKey), slog.Any("error", delErr))
			}
		}
		return err
	}
	return nil
}

// RecordAPICall increments the advisory API counter. Best effort: a failure
// is logged and never fails the request it accompanies.
func (s *Service) RecordAPICall(ctx context.Context, instanceID string) {
	if s.counters == nil || instanceID == "" {
		return
	}
	if err := s.counters.Incr(ctx, apiCallKeyPrefix+instanceID).Err(); err != nil && s.logger != nil {
		s.logger.Warn("record api call", slog.String("instance", instanceID), slog.Any("error", err))
	}
}

// LowBalance reports whether the remaining credit fraction is at or below
// the configured threshold. Advisory only; it never blocks the operation.
func (s *Service) LowBalance(ctx context.Context, instanceID string) (bool, error) {
	balance, err := s.repo.GetBalance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return s.lowBalance(*balance), nil
}

func (s *Service) lowBalance(b Balance) bool {
	if b.TotalAudits == Unlimited {
		return false
	}
	return b.UsedFraction() >= 1-s.threshold
}

// LowBalances returns every balance at or below the alert threshold.
func (s *Service) LowBalances(ctx context.Context) ([]Balance, error) {
	balances, err := s.repo.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	var low []Balance
	for _, b := range balances {
		if s.lowBalance(b) {
			low = append(low, b)
		}
	}
	return low, nil
}

// UsageReport returns the balances for every instance in an organization.
// An empty organization ID returns every balance.
func (s *Service) UsageReport(ctx context.Context, organizationID string) ([]Balance, error) {
	if organizationID == "" {
		return s.repo.ListBalances(ctx)
	}
	return s.repo.ListBalancesByOrganization(ctx, organizationID)
}

// TopUp raises the ceilings for an instance.
func (s *Service) TopUp(ctx context.Context, instanceID string, audits, tokens int64) error {
	return s.repo.TopUp(ctx, instanceID, audits, tokens)
}

// ResetUsage zeroes usage counters for an instance.
func (s *Service) ResetUsage(ctx context.Context, instanceID string) error {
	return s.repo.ResetUsage(ctx, instanceID)
}

// FlushAPICalls drains the redis counters into the durable balance rows.
// Called by the usage rollup job; a counter that fails to persist is pushed
// back so the next run retries it.
func (s *Service) FlushAPICalls(ctx context.Context) error {
	if s.counters == nil {
		return nil
	}
	iter := s.counters.Scan(ctx, 0, apiCallKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		count, err := s.counters.GetDel(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("credits: read counter %s: %w", key, err)
		}
		if count == 0 {
			continue
		}
		instanceID := strings.TrimPrefix(key, apiCallKeyPrefix)
		if err := s.repo.AddAPICalls(ctx, instanceID, count); err != nil {
			if pushErr := s.counters.IncrBy(ctx, key, count).Err(); pushErr != nil && s.logger != nil {
				s.logger.Error("api counter lost", slog.String("instance", instanceID), slog.Int64("count", count), slog.Any("error", pushErr))
			}
			return fmt.Errorf("credits: persist counter %s: %w", key, err)
		}
	}
	return iter.Err()
}
