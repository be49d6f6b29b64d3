package instances

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Repository defines persistence operations for instances.
type Repository interface {
	Create(ctx context.Context, inst Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	ListByOrganization(ctx context.Context, organizationID string, page shared.Pagination) ([]Instance, error)
	List(ctx context.Context, page shared.Pagination) ([]Instance, error)
	Rename(ctx context.Context, id, name string) error
	SetStatus(ctx context.Context, id string, status Status) error
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

const instanceColumns = `id, organization_id, project_id, name, region, status, created_at, updated_at`

func scanInstance(row pgx.Row) (*Instance, error) {
	var inst Instance
	err := row.Scan(&inst.ID, &inst.OrganizationID, &inst.ProjectID, &inst.Name, &inst.Region, &inst.Status, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// Create inserts a new instance row.
func (r *PGRepository) Create(ctx context.Context, inst Instance) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx, `INSERT INTO instances (id, organization_id, project_id, name, region, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, inst.ID, inst.OrganizationID, inst.ProjectID, inst.Name, inst.Region, inst.Status, now)
	return err
}

// Get fetches one instance by ID.
func (r *PGRepository) Get(ctx context.Context, id string) (*Instance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = $1`, id)
	return scanInstance(row)
}

// ListByOrganization returns the instances owned by one organization.
func (r *PGRepository) ListByOrganization(ctx context.Context, organizationID string, page shared.Pagination) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+instanceColumns+` FROM instances WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		organizationID, page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

// List returns instances across all organizations.
func (r *PGRepository) List(ctx context.Context, page shared.Pagination) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+instanceColumns+` FROM instances ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

func collectInstances(rows pgx.Rows) ([]Instance, error) {
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.OrganizationID, &inst.ProjectID, &inst.Name, &inst.Region, &inst.Status, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Rename updates the display name.
func (r *PGRepository) Rename(ctx context.Context, id, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE instances SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus moves the instance between active and suspended.
func (r *PGRepository) SetStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE instances SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an instance row. Used to unwind a failed provision.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
