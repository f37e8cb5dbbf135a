package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// Workflow event types published to the event bus.
const (
	EventWorkflowSubmitted = "submitted"
	EventWorkflowCompleted = "completed"
	EventWorkflowRejected  = "rejected"
)

// WorkflowService orchestrates the approval chain for submitted entities:
// it materializes steps from the resolved policy, advances the chain as
// approvers act, and reports terminal outcomes to the collaborator.
type WorkflowService struct {
	policies    *PolicyService
	steps       StepStore
	delegations *DelegationService
	audit       AuditLog
	listener    WorkflowListener
	events      EventPublisher
	log         zerolog.Logger
}

// NewWorkflowService creates a new WorkflowService. Pass a NoopListener when
// no collaborator callback is registered; events may be nil.
func NewWorkflowService(
	policies *PolicyService,
	steps StepStore,
	delegations *DelegationService,
	audit AuditLog,
	listener WorkflowListener,
	events EventPublisher,
	log zerolog.Logger,
) *WorkflowService {
	if listener == nil {
		listener = NoopListener{}
	}
	return &WorkflowService{
		policies:    policies,
		steps:       steps,
		delegations: delegations,
		audit:       audit,
		listener:    listener,
		events:      events,
		log:         log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// Submit resolves the applicable policy and materializes the full ordered
// step chain for the entity, every level PENDING, in one batch insert.
// Submission happens exactly once per entity; a second call fails with
// WORKFLOW_ALREADY_EXISTS.
func (s *WorkflowService) Submit(
	ctx context.Context,
	tenantID, module string,
	amount *int64,
	entityType, entityID, submittedBy string,
) ([]*repository.ApprovalStep, error) {
	if entityType == "" || entityID == "" {
		return nil, apperrors.InvalidInput("entity_id", "entity_type and entity_id are required")
	}

	policy, err := s.policies.Resolve(ctx, tenantID, module, amount)
	if err != nil {
		return nil, err
	}
	if len(policy.Levels) == 0 {
		// The caller decides whether this means auto-approval; the engine
		// only reports the condition and touches no state.
		return nil, apperrors.NewReason(apperrors.ErrCodeInvalidInput, apperrors.ReasonPolicyHasNoLevels,
			fmt.Sprintf("policy %s has no approval levels", policy.ID))
	}

	levels := make([]repository.PolicyLevel, len(policy.Levels))
	copy(levels, policy.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	steps := make([]*repository.ApprovalStep, 0, len(levels))
	for _, lvl := range levels {
		steps = append(steps, &repository.ApprovalStep{
			TenantID:     tenantID,
			EntityType:   entityType,
			EntityID:     entityID,
			LevelOrder:   lvl.Level,
			RequiredRole: lvl.Role,
		})
	}

	if err := s.steps.CreateChain(ctx, steps); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TenantID:    tenantID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      "SUBMITTED",
		PerformedBy: submittedBy,
		Metadata: map[string]interface{}{
			"policy_id":   policy.ID,
			"module":      module,
			"total_steps": len(steps),
		},
	})
	s.publish(ctx, EventWorkflowSubmitted, tenantID, entityType, entityID, submittedBy, map[string]interface{}{
		"policy_id":   policy.ID,
		"total_steps": len(steps),
	})

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Str("policy_id", policy.ID).
		Int("total_steps", len(steps)).
		Msg("Approval workflow created")
	return steps, nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve records approval of a step. The status-check-then-update is a
// single conditional UPDATE, so of N concurrent approvers exactly one
// succeeds and the rest fail with STEP_NOT_PENDING. Returns the updated
// step and whether the whole workflow is now complete.
func (s *WorkflowService) Approve(
	ctx context.Context,
	tenantID, stepID, actorID string,
	notes *string,
) (*repository.ApprovalStep, bool, error) {
	step, err := s.steps.GetByID(ctx, tenantID, stepID)
	if err != nil {
		return nil, false, err
	}
	if step.Status != repository.StepStatusPending {
		return nil, false, apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepNotPending,
			fmt.Sprintf("step is not pending (status: %s)", step.Status))
	}

	actingAs, err := s.delegations.ResolveActor(ctx, tenantID, step.RequiredRole, actorID)
	if err != nil {
		return nil, false, err
	}

	step, err = s.steps.Approve(ctx, tenantID, stepID, actingAs, notes)
	if err != nil {
		return nil, false, err
	}

	remaining, err := s.steps.CountPending(ctx, tenantID, step.EntityType, step.EntityID)
	if err != nil {
		return nil, false, err
	}
	complete := remaining == 0

	s.appendAudit(ctx, &repository.AuditEntry{
		TenantID:    tenantID,
		EntityType:  step.EntityType,
		EntityID:    step.EntityID,
		StepID:      &step.ID,
		Action:      "APPROVED",
		PerformedBy: actorID,
		Metadata: map[string]interface{}{
			"level_order":       step.LevelOrder,
			"acting_as":         actingAs,
			"workflow_complete": complete,
		},
	})

	if complete {
		s.notifyComplete(ctx, tenantID, step.EntityType, step.EntityID, actorID)
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("step_id", step.ID).
		Str("actor_id", actorID).
		Str("acting_as", actingAs).
		Int("level_order", step.LevelOrder).
		Bool("workflow_complete", complete).
		Msg("Approval step approved")
	return step, complete, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject records rejection of a step and terminates the chain: every other
// still-PENDING step of the entity turns SKIPPED in the same transaction.
func (s *WorkflowService) Reject(
	ctx context.Context,
	tenantID, stepID, actorID, reason string,
) (*repository.ApprovalStep, error) {
	if reason == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required")
	}

	step, err := s.steps.GetByID(ctx, tenantID, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status != repository.StepStatusPending {
		return nil, apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepNotPending,
			fmt.Sprintf("step is not pending (status: %s)", step.Status))
	}

	actingAs, err := s.delegations.ResolveActor(ctx, tenantID, step.RequiredRole, actorID)
	if err != nil {
		return nil, err
	}

	step, err = s.steps.Reject(ctx, tenantID, stepID, actingAs, reason)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TenantID:    tenantID,
		EntityType:  step.EntityType,
		EntityID:    step.EntityID,
		StepID:      &step.ID,
		Action:      "REJECTED",
		PerformedBy: actorID,
		Metadata: map[string]interface{}{
			"level_order": step.LevelOrder,
			"acting_as":   actingAs,
			"reason":      reason,
		},
	})

	if err := s.listener.OnWorkflowRejected(ctx, tenantID, step.EntityType, step.EntityID, reason); err != nil {
		s.log.Error().Err(err).
			Str("entity_type", step.EntityType).
			Str("entity_id", step.EntityID).
			Msg("Workflow rejection callback failed")
	}
	s.publish(ctx, EventWorkflowRejected, tenantID, step.EntityType, step.EntityID, actorID, map[string]interface{}{
		"reason":      reason,
		"level_order": step.LevelOrder,
	})

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("step_id", step.ID).
		Str("actor_id", actorID).
		Int("level_order", step.LevelOrder).
		Msg("Approval step rejected, workflow terminated")
	return step, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetChain returns the full ordered step set for an entity. An unknown or
// cross-tenant entity fails closed as not-found.
func (s *WorkflowService) GetChain(ctx context.Context, tenantID, entityType, entityID string) ([]*repository.ApprovalStep, error) {
	steps, err := s.steps.GetChain(ctx, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonStepNotFound,
			"no approval chain exists for this entity")
	}
	return steps, nil
}

// GetPendingForActor returns the steps currently awaiting action from the
// actor, across direct roles and active incoming delegations, restricted to
// each entity's earliest open level.
func (s *WorkflowService) GetPendingForActor(ctx context.Context, tenantID, actorID string) ([]*repository.ApprovalStep, error) {
	roles, err := s.delegations.ActableRoles(ctx, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	return s.steps.GetPendingForRoles(ctx, tenantID, roles)
}

// GetHistory returns the audit trail for an entity.
func (s *WorkflowService) GetHistory(ctx context.Context, tenantID, entityType, entityID string) ([]*repository.AuditEntry, error) {
	return s.audit.GetByEntity(ctx, tenantID, entityType, entityID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *WorkflowService) notifyComplete(ctx context.Context, tenantID, entityType, entityID, actorID string) {
	if err := s.listener.OnWorkflowComplete(ctx, tenantID, entityType, entityID); err != nil {
		s.log.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("Workflow completion callback failed")
	}
	s.publish(ctx, EventWorkflowCompleted, tenantID, entityType, entityID, actorID, nil)
}

func (s *WorkflowService) publish(ctx context.Context, eventType, tenantID, entityType, entityID, actorID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.PublishWorkflowEvent(ctx, eventType, tenantID, entityType, entityID, actorID, payload)
}

// appendAudit writes an audit entry and logs a warning on failure (never
// returns error).
func (s *WorkflowService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("tenant_id", entry.TenantID).
			Str("entity_id", entry.EntityID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
