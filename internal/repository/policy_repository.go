package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
)

// PolicyRepository handles CRUD for approval_policies.
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create inserts a new approval policy.
func (r *PolicyRepository) Create(ctx context.Context, p *ApprovalPolicy) error {
	levelsJSON, err := json.Marshal(p.Levels)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal policy levels")
	}

	p.ID = uuid.New().String()

	query := `
		INSERT INTO approval_policies
		    (id, tenant_id, name, module, is_active,
		     priority, min_amount, max_amount, levels)
		VALUES ($1, $2, $3, $4::approval_module, $5,
		        $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		p.ID,
		p.TenantID,
		p.Name,
		p.Module,
		p.IsActive,
		p.Priority,
		p.MinAmount,
		p.MaxAmount,
		levelsJSON,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID retrieves a policy by primary key, scoped to the tenant.
func (r *PolicyRepository) GetByID(ctx context.Context, tenantID, id string) (*ApprovalPolicy, error) {
	query := `
		SELECT id, tenant_id, name, module, is_active,
		       priority, min_amount, max_amount, levels,
		       created_at, updated_at
		FROM approval_policies
		WHERE tenant_id = $1 AND id = $2
	`

	p, err := r.scanPolicy(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_policy", id)
	}
	return p, err
}

// List returns all policies for a tenant, optionally filtered to active only.
func (r *PolicyRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]*ApprovalPolicy, error) {
	query := `
		SELECT id, tenant_id, name, module, is_active,
		       priority, min_amount, max_amount, levels,
		       created_at, updated_at
		FROM approval_policies
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY module ASC, priority ASC, created_at ASC"

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list approval policies")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListActiveForModule returns active policies for a (tenant, module) ordered
// by ascending priority, ties broken oldest-first. The resolver evaluates
// amount bounds in Go to keep the SQL simple.
func (r *PolicyRepository) ListActiveForModule(ctx context.Context, tenantID, module string) ([]*ApprovalPolicy, error) {
	query := `
		SELECT id, tenant_id, name, module, is_active,
		       priority, min_amount, max_amount, levels,
		       created_at, updated_at
		FROM approval_policies
		WHERE tenant_id = $1
		  AND module = $2::approval_module
		  AND is_active = TRUE
		ORDER BY priority ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, module)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load active policies")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Update persists changes to an existing policy. Steps already materialized
// from the previous level template are untouched.
func (r *PolicyRepository) Update(ctx context.Context, p *ApprovalPolicy) error {
	levelsJSON, err := json.Marshal(p.Levels)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal policy levels")
	}

	query := `
		UPDATE approval_policies
		SET name       = $3,
		    module     = $4::approval_module,
		    is_active  = $5,
		    priority   = $6,
		    min_amount = $7,
		    max_amount = $8,
		    levels     = $9,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		p.TenantID,
		p.ID,
		p.Name,
		p.Module,
		p.IsActive,
		p.Priority,
		p.MinAmount,
		p.MaxAmount,
		levelsJSON,
	).Scan(&p.UpdatedAt)

	if err == pgx.ErrNoRows {
		return apperrors.NotFound("approval_policy", p.ID)
	}
	return err
}

// Delete removes an approval policy.
func (r *PolicyRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `
		DELETE FROM approval_policies
		WHERE tenant_id = $1 AND id = $2
	`

	tag, err := r.db.Exec(ctx, query, tenantID, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete approval policy")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("approval_policy", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type policyScanner interface {
	Scan(dest ...any) error
}

func (r *PolicyRepository) scanPolicy(row policyScanner) (*ApprovalPolicy, error) {
	p := &ApprovalPolicy{}
	var levelsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Module,
		&p.IsActive,
		&p.Priority,
		&p.MinAmount,
		&p.MaxAmount,
		&levelsJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(levelsJSON, &p.Levels); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal policy levels")
	}
	return p, nil
}

func (r *PolicyRepository) scanRows(rows pgx.Rows) ([]*ApprovalPolicy, error) {
	var policies []*ApprovalPolicy
	for rows.Next() {
		p, err := r.scanPolicy(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval policy")
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
