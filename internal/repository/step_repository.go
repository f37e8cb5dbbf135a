package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
)

// uniqueViolation is the PostgreSQL error code raised when inserting a
// duplicate (tenant, entity_type, entity_id, level_order) step.
const uniqueViolation = "23505"

// StepRepository owns approval_steps. Step transitions use atomic
// conditional updates: the WHERE clause on the current status is the sole
// concurrency control, never an application-level read-then-write.
type StepRepository struct {
	db *database.DB
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(db *database.DB) *StepRepository {
	return &StepRepository{db: db}
}

// CreateChain inserts the full ordered step set for an entity in a single
// transaction. A second materialization attempt for the same entity trips
// the unique index and is reported as WORKFLOW_ALREADY_EXISTS.
func (r *StepRepository) CreateChain(ctx context.Context, steps []*ApprovalStep) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_steps
			    (id, tenant_id, entity_type, entity_id,
			     level_order, required_role, status)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7::approval_step_status)
			RETURNING created_at, updated_at
		`

		for _, step := range steps {
			step.ID = uuid.New().String()
			step.Status = StepStatusPending

			err := tx.QueryRow(ctx, query,
				step.ID,
				step.TenantID,
				step.EntityType,
				step.EntityID,
				step.LevelOrder,
				step.RequiredRole,
				step.Status,
			).Scan(&step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonWorkflowAlreadyExists,
				"approval steps already exist for this entity")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create approval steps")
	}
	return nil
}

// GetByID retrieves a step scoped to the tenant. Cross-tenant lookups fail
// closed as not-found.
func (r *StepRepository) GetByID(ctx context.Context, tenantID, id string) (*ApprovalStep, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id,
		       level_order, required_role, status,
		       approver_id, action_at, notes, rejection_reason,
		       created_at, updated_at
		FROM approval_steps
		WHERE tenant_id = $1 AND id = $2
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonStepNotFound,
			"approval step not found")
	}
	return step, err
}

// GetChain returns all steps for an entity ordered by level_order.
func (r *StepRepository) GetChain(ctx context.Context, tenantID, entityType, entityID string) ([]*ApprovalStep, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id,
		       level_order, required_role, status,
		       approver_id, action_at, notes, rejection_reason,
		       created_at, updated_at
		FROM approval_steps
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY level_order ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, entityType, entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get approval chain")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Approve transitions a PENDING step to APPROVED, recording who acted.
// The update only matches when the step is still PENDING and no earlier
// level of the same entity is still open, so concurrent approvers racing on
// one step leave exactly one winner.
func (r *StepRepository) Approve(ctx context.Context, tenantID, id, approverID string, notes *string) (*ApprovalStep, error) {
	query := `
		UPDATE approval_steps s
		SET status     = 'APPROVED'::approval_step_status,
		    approver_id = $3,
		    action_at  = NOW(),
		    notes      = $4,
		    updated_at = NOW()
		WHERE s.tenant_id = $1
		  AND s.id = $2
		  AND s.status = 'PENDING'
		  AND NOT EXISTS (
		      SELECT 1 FROM approval_steps e
		      WHERE e.tenant_id = s.tenant_id
		        AND e.entity_type = s.entity_type
		        AND e.entity_id = s.entity_id
		        AND e.level_order < s.level_order
		        AND e.status = 'PENDING'
		  )
		RETURNING id, tenant_id, entity_type, entity_id,
		          level_order, required_role, status,
		          approver_id, action_at, notes, rejection_reason,
		          created_at, updated_at
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, tenantID, id, approverID, notes))
	if err == pgx.ErrNoRows {
		return nil, r.classifyFailedTransition(ctx, tenantID, id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to approve step")
	}
	return step, nil
}

// Reject transitions a PENDING step to REJECTED and, in the same
// transaction, marks every other still-PENDING step of the entity SKIPPED.
// Rejection at any level terminates the whole chain.
func (r *StepRepository) Reject(ctx context.Context, tenantID, id, approverID, reason string) (*ApprovalStep, error) {
	var step *ApprovalStep

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_steps s
			SET status           = 'REJECTED'::approval_step_status,
			    approver_id      = $3,
			    action_at        = NOW(),
			    rejection_reason = $4,
			    updated_at       = NOW()
			WHERE s.tenant_id = $1
			  AND s.id = $2
			  AND s.status = 'PENDING'
			  AND NOT EXISTS (
			      SELECT 1 FROM approval_steps e
			      WHERE e.tenant_id = s.tenant_id
			        AND e.entity_type = s.entity_type
			        AND e.entity_id = s.entity_id
			        AND e.level_order < s.level_order
			        AND e.status = 'PENDING'
			  )
			RETURNING id, tenant_id, entity_type, entity_id,
			          level_order, required_role, status,
			          approver_id, action_at, notes, rejection_reason,
			          created_at, updated_at
		`

		var err error
		step, err = r.scanStep(tx.QueryRow(ctx, query, tenantID, id, approverID, reason))
		if err != nil {
			return err
		}

		// Cascade: the rest of the chain never gets a chance to act.
		skip := `
			UPDATE approval_steps
			SET status     = 'SKIPPED'::approval_step_status,
			    updated_at = NOW()
			WHERE tenant_id = $1
			  AND entity_type = $2
			  AND entity_id = $3
			  AND id <> $4
			  AND status = 'PENDING'
		`
		_, err = tx.Exec(ctx, skip, tenantID, step.EntityType, step.EntityID, step.ID)
		return err
	})
	if err == pgx.ErrNoRows {
		return nil, r.classifyFailedTransition(ctx, tenantID, id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to reject step")
	}
	return step, nil
}

// CountPending returns how many steps of an entity are still open.
func (r *StepRepository) CountPending(ctx context.Context, tenantID, entityType, entityID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM approval_steps
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		  AND status = 'PENDING'
	`

	var n int
	if err := r.db.QueryRow(ctx, query, tenantID, entityType, entityID).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count pending steps")
	}
	return n, nil
}

// GetPendingForRoles returns PENDING steps whose required role is in the
// given set, restricted to each entity's earliest open level. An approver is
// never shown a step that is not yet the current one.
func (r *StepRepository) GetPendingForRoles(ctx context.Context, tenantID string, roles []string) ([]*ApprovalStep, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := `
		SELECT s.id, s.tenant_id, s.entity_type, s.entity_id,
		       s.level_order, s.required_role, s.status,
		       s.approver_id, s.action_at, s.notes, s.rejection_reason,
		       s.created_at, s.updated_at
		FROM approval_steps s
		WHERE s.tenant_id = $1
		  AND s.status = 'PENDING'
		  AND s.required_role = ANY($2)
		  AND s.level_order = (
		      SELECT MIN(e.level_order) FROM approval_steps e
		      WHERE e.tenant_id = s.tenant_id
		        AND e.entity_type = s.entity_type
		        AND e.entity_id = s.entity_id
		        AND e.status = 'PENDING'
		  )
		ORDER BY s.created_at ASC, s.entity_id ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, roles)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// classifyFailedTransition distinguishes why a conditional transition
// matched zero rows. The re-read is for error reporting only; the atomic
// update above already settled who won.
func (r *StepRepository) classifyFailedTransition(ctx context.Context, tenantID, id string) error {
	step, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if step.Status != StepStatusPending {
		return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepNotPending,
			"step is not pending")
	}
	return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepOutOfOrder,
		"an earlier step of this entity is still pending")
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *StepRepository) scanStep(row stepScanner) (*ApprovalStep, error) {
	s := &ApprovalStep{}
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.EntityType,
		&s.EntityID,
		&s.LevelOrder,
		&s.RequiredRole,
		&s.Status,
		&s.ApproverID,
		&s.ActionAt,
		&s.Notes,
		&s.RejectionReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StepRepository) scanRows(rows pgx.Rows) ([]*ApprovalStep, error) {
	var steps []*ApprovalStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval step")
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
