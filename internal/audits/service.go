package audits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clarion-qa/clarion/internal/shared"
)

// CreditConsumer bills one audit against the instance ledger. Satisfied by
// credits.Service.
type CreditConsumer interface {
	CheckAuditCredit(ctx context.Context, instanceID string) error
	ConsumeAuditCredit(ctx context.Context, instanceID string, tokens int64, idempotencyKey string) error
}

// CreateRequest carries the inputs for a billable audit.
type CreateRequest struct {
	InstanceID     string
	CallID         string
	AgentID        string
	AuditorID      string
	Score          float64
	TokensUsed     int64
	Notes          string
	IdempotencyKey string
}

// Service provides business logic for audits.
type Service struct {
	repo    Repository
	credits CreditConsumer
	logger  *slog.Logger
}

// NewService constructs an audits service.
func NewService(repo Repository, creditConsumer CreditConsumer, logger *slog.Logger) *Service {
	return &Service{repo: repo, credits: creditConsumer, logger: logger}
}

// Create performs the billable create. The credit check runs before any
// write so an exhausted instance fails fast with ErrInsufficientCredit.
// The consume that follows the insert is guarded by the ceiling again, so
// two racing creates on the last credit cannot both bill; the loser's row
// is unwound.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Audit, error) {
	if req.InstanceID == "" || req.CallID == "" || req.AgentID == "" {
		return nil, fmt.Errorf("%w: instance, call, and agent are required", shared.ErrValidation)
	}
	if req.Score < 0 || req.Score > 100 {
		return nil, fmt.Errorf("%w: score must be between 0 and 100", shared.ErrValidation)
	}
	if err := s.credits.CheckAuditCredit(ctx, req.InstanceID); err != nil {
		return nil, err
	}

	audit := Audit{
		ID:         uuid.NewString(),
		InstanceID: req.InstanceID,
		CallID:     req.CallID,
		AgentID:    req.AgentID,
		AuditorID:  req.AuditorID,
		Score:      req.Score,
		TokensUsed: req.TokensUsed,
		Notes:      req.Notes,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, audit); err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = "audit:" + audit.ID
	}
	if err := s.credits.ConsumeAuditCredit(ctx, req.InstanceID, req.TokensUsed, key); err != nil {
		if delErr := s.repo.Delete(ctx, audit.ID); delErr != nil && s.logger != nil {
			s.logger.Error("unbilled audit left behind", slog.String("audit", audit.ID), slog.Any("error", delErr))
		}
		return nil, err
	}
	return &audit, nil
}

// Get retrieves one audit. Callers outside the audit's instance get
// ErrNotFound rather than a hint that the ID exists.
func (s *Service) Get(ctx context.Context, id, instanceID string) (*Audit, error) {
	audit, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instanceID != "" && audit.InstanceID != instanceID {
		return nil, shared.ErrNotFound
	}
	return audit, nil
}

// List returns audits matching the filter.
func (s *Service) List(ctx context.Context, filter Filter, page shared.Pagination) ([]Audit, error) {
	if page.PerPage <= 0 {
		page = shared.NewPagination(page.Page, 0, 0)
	}
	return s.repo.List(ctx, filter, page)
}
