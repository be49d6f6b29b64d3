package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Repository defines persistence operations for credit balances.
type Repository interface {
	GetBalance(ctx context.Context, instanceID string) (*Balance, error)
	Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing BillingType) error
	ConsumeAudit(ctx context.Context, instanceID string, tokens int64) error
	TopUp(ctx context.Context, instanceID string, audits, tokens int64) error
	ResetUsage(ctx context.Context, instanceID string) error
	AddAPICalls(ctx context.Context, instanceID string, calls int64) error
	ListBalances(ctx context.Context) ([]Balance, error)
	ListBalancesByOrganization(ctx context.Context, organizationID string) ([]Balance, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const balanceColumns = `instance_id, used_audits, total_audits, used_tokens, total_tokens, api_calls, billing_type, updated_at`

func scanBalance(row pgx.Row) (*Balance, error) {
	var b Balance
	err := row.Scan(&b.InstanceID, &b.UsedAudits, &b.TotalAudits, &b.UsedTokens, &b.TotalTokens, &b.APICalls, &b.BillingType, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetBalance fetches the balance for an instance.
func (r *PGRepository) GetBalance(ctx context.Context, instanceID string) (*Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM credit_balances WHERE instance_id = $1`, instanceID)
	return scanBalance(row)
}

// Provision creates the balance row for a freshly provisioned instance.
func (r *PGRepository) Provision(ctx context.Context, instanceID string, totalAudits, totalTokens int64, billing BillingType) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO credit_balances (instance_id, used_audits, total_audits, used_tokens, total_tokens, api_calls, billing_type, updated_at)
VALUES ($1, 0, $2, 0, $3, 0, $4, $5)`, instanceID, totalAudits, totalTokens, billing, time.Now())
	return err
}

// ConsumeAudit applies one audit and the token count in a single atomic
// update guarded by the ceiling, so concurrent consumers for the same tenant
// never race past the limit. Read-modify-write in application code is
// deliberately avoided.
func (r *PGRepository) ConsumeAudit(ctx context.Context, instanceID string, tokens int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credit_balances
SET used_audits = used_audits + 1, used_tokens = used_tokens + $2, updated_at = NOW()
WHERE instance_id = $1 AND (total_audits = -1 OR used_audits < total_audits)`, instanceID, tokens)
	if err != nil {
		return fmt.Errorf("credits: consume audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the instance is unknown or the ceiling was hit.
		if _, err := r.GetBalance(ctx, instanceID); err != nil {
			return err
		}
		return shared.ErrInsufficientCredit
	}
	return nil
}

// TopUp raises the audit and token ceilings.
func (r *PGRepository) TopUp(ctx context.Context, instanceID string, audits, tokens int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credit_balances
SET total_audits = CASE WHEN total_audits = -1 THEN -1 ELSE total_audits + $2 END,
    total_tokens = CASE WHEN total_tokens = -1 THEN -1 ELSE total_tokens + $3 END,
    updated_at = NOW()
WHERE instance_id = $1`, instanceID, audits, tokens)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ResetUsage zeroes the usage counters after an administrative reset.
func (r *PGRepository) ResetUsage(ctx context.Context, instanceID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credit_balances SET used_audits = 0, used_tokens = 0, updated_at = NOW() WHERE instance_id = $1`, instanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddAPICalls folds rolled-up advisory counters into the balance row.
func (r *PGRepository) AddAPICalls(ctx context.Context, instanceID string, calls int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE credit_balances SET api_calls = api_calls + $2, updated_at = NOW() WHERE instance_id = $1`, instanceID, calls)
	return err
}

// ListBalances returns every balance, used by the low-balance scan.
func (r *PGRepository) ListBalances(ctx context.Context) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceColumns+` FROM credit_balances ORDER BY instance_id`)
	if err != nil {
		return nil, err
	}
	return collectBalances(rows)
}

// ListBalancesByOrganization returns the balances for every instance owned
// by the given organization.
func (r *PGRepository) ListBalancesByOrganization(ctx context.Context, organizationID string) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.instance_id, b.used_audits, b.total_audits, b.used_tokens, b.total_tokens, b.api_calls, b.billing_type, b.updated_at
FROM credit_balances b
JOIN instances i ON i.id = b.instance_id
WHERE i.organization_id = $1
ORDER BY b.instance_id`, organizationID)
	if err != nil {
		return nil, err
	}
	return collectBalances(rows)
}

func collectBalances(rows pgx.Rows) ([]Balance, error) {
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.InstanceID, &b.UsedAudits, &b.TotalAudits, &b.UsedTokens, &b.TotalTokens, &b.APICalls, &b.BillingType, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

var _ Repository = (*PGRepository)(nil)
