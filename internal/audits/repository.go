package audits

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Repository defines persistence operations for audits.
type Repository interface {
	Create(ctx context.Context, audit Audit) error
	Get(ctx context.Context, id string) (*Audit, error)
	List(ctx context.Context, filter Filter, page shared.Pagination) ([]Audit, error)
	Delete(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const auditColumns = `id, instance_id, call_id, agent_id, auditor_id, score, tokens_used, notes, created_at`

// Create inserts a new audit row.
func (r *PGRepository) Create(ctx context.Context, audit Audit) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audits (id, instance_id, call_id, agent_id, auditor_id, score, tokens_used, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		audit.ID, audit.InstanceID, audit.CallID, audit.AgentID, audit.AuditorID, audit.Score, audit.TokensUsed, audit.Notes, audit.CreatedAt)
	return err
}

// Get fetches one audit by ID.
func (r *PGRepository) Get(ctx context.Context, id string) (*Audit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1`, id)
	var a Audit
	err := row.Scan(&a.ID, &a.InstanceID, &a.CallID, &a.AgentID, &a.AuditorID, &a.Score, &a.TokensUsed, &a.Notes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List returns audits matching the filter, newest first.
func (r *PGRepository) List(ctx context.Context, filter Filter, page shared.Pagination) ([]Audit, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}
	if filter.InstanceID != "" {
		add("instance_id =", filter.InstanceID)
	}
	if filter.AgentID != "" {
		add("agent_id =", filter.AgentID)
	}
	if filter.AuditorID != "" {
		add("auditor_id =", filter.AuditorID)
	}
	if !filter.From.IsZero() {
		add("created_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <", filter.To)
	}

	query := `SELECT ` + auditColumns + ` FROM audits`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, page.PerPage, page.Offset())
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Audit
	for rows.Next() {
		var a Audit
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.CallID, &a.AgentID, &a.AuditorID, &a.Score, &a.TokensUsed, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an audit row. Used to unwind a failed billable create.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM audits WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
