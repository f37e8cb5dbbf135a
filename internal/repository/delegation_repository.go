package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
)

// DelegationRepository handles approver_delegations. Rows are only ever
// soft-deactivated, never deleted.
type DelegationRepository struct {
	db *database.DB
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db *database.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// Create inserts a delegation after checking, inside the same transaction,
// that the delegator has no active delegation overlapping the new window.
func (r *DelegationRepository) Create(ctx context.Context, d *Delegation) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		overlap := `
			SELECT EXISTS (
			    SELECT 1 FROM approver_delegations
			    WHERE tenant_id = $1
			      AND delegator_id = $2
			      AND is_active = TRUE
			      AND start_date <= $4
			      AND end_date >= $3
			)
		`

		var exists bool
		if err := tx.QueryRow(ctx, overlap, d.TenantID, d.DelegatorID, d.StartDate, d.EndDate).Scan(&exists); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check delegation overlap")
		}
		if exists {
			return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonOverlappingDelegation,
				"delegator already has an active delegation overlapping this window")
		}

		d.ID = uuid.New().String()
		d.IsActive = true

		query := `
			INSERT INTO approver_delegations
			    (id, tenant_id, delegator_id, delegatee_id,
			     start_date, end_date, is_active, reason)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			d.ID,
			d.TenantID,
			d.DelegatorID,
			d.DelegateeID,
			d.StartDate,
			d.EndDate,
			d.IsActive,
			d.Reason,
		).Scan(&d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create delegation")
		}
		return nil
	})
}

// GetByID retrieves a delegation scoped to the tenant.
func (r *DelegationRepository) GetByID(ctx context.Context, tenantID, id string) (*Delegation, error) {
	query := `
		SELECT id, tenant_id, delegator_id, delegatee_id,
		       start_date, end_date, is_active, reason,
		       created_at, updated_at
		FROM approver_delegations
		WHERE tenant_id = $1 AND id = $2
	`

	d, err := r.scanDelegation(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("delegation", id)
	}
	return d, err
}

// List returns delegations for a tenant, optionally filtered by delegator.
func (r *DelegationRepository) List(ctx context.Context, tenantID string, delegatorID *string) ([]*Delegation, error) {
	query := `
		SELECT id, tenant_id, delegator_id, delegatee_id,
		       start_date, end_date, is_active, reason,
		       created_at, updated_at
		FROM approver_delegations
		WHERE tenant_id = $1
		  AND ($2::text IS NULL OR delegator_id = $2)
		ORDER BY start_date DESC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, tenantID, delegatorID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var out []*Delegation
	for rows.Next() {
		d, err := r.scanDelegation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan delegation")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ActiveForDelegatee returns delegations naming the user as delegatee whose
// window contains now. Evaluated fresh on every authorization decision.
func (r *DelegationRepository) ActiveForDelegatee(ctx context.Context, tenantID, delegateeID string, now time.Time) ([]*Delegation, error) {
	query := `
		SELECT id, tenant_id, delegator_id, delegatee_id,
		       start_date, end_date, is_active, reason,
		       created_at, updated_at
		FROM approver_delegations
		WHERE tenant_id = $1
		  AND delegatee_id = $2
		  AND is_active = TRUE
		  AND start_date <= $3
		  AND end_date >= $3
		ORDER BY start_date ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, delegateeID, now)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load active delegations")
	}
	defer rows.Close()

	var out []*Delegation
	for rows.Next() {
		d, err := r.scanDelegation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan delegation")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Deactivate soft-disables a delegation. The WHERE is_active clause makes
// the transition conditional: an already-inactive record fails rather than
// silently succeeding, since deactivation is terminal.
func (r *DelegationRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE approver_delegations
		SET is_active  = FALSE,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND is_active = TRUE
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		// Distinguish missing from already-inactive for the caller.
		if _, getErr := r.GetByID(ctx, tenantID, id); getErr != nil {
			return getErr
		}
		return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonDelegationNotActive,
			"delegation is already inactive")
	}
	return err
}

// ── scan helper ──────────────────────────────────────────────────────────────

type delegationScanner interface {
	Scan(dest ...any) error
}

func (r *DelegationRepository) scanDelegation(row delegationScanner) (*Delegation, error) {
	d := &Delegation{}
	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.DelegatorID,
		&d.DelegateeID,
		&d.StartDate,
		&d.EndDate,
		&d.IsActive,
		&d.Reason,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
