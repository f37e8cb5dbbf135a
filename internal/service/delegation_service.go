package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// DelegationService is both the delegation manager (CRUD plus invariants)
// and the delegation resolver: every "who may act" decision in the engine
// routes through ResolveActor, never re-implemented at call sites.
type DelegationService struct {
	delegations DelegationStore
	members     RoleDirectory
	audit       AuditLog
	log         zerolog.Logger
	now         func() time.Time
}

// NewDelegationService creates a new DelegationService.
func NewDelegationService(delegations DelegationStore, members RoleDirectory, audit AuditLog, log zerolog.Logger) *DelegationService {
	return &DelegationService{
		delegations: delegations,
		members:     members,
		audit:       audit,
		log:         log,
		now:         time.Now,
	}
}

// ── Manager ───────────────────────────────────────────────────────────────────

// Create registers a time-bounded delegation. A delegator may have at most
// one active delegate over any instant, so overlap is rejected; the overlap
// check runs in the same transaction as the insert.
func (s *DelegationService) Create(
	ctx context.Context,
	tenantID, delegatorID, delegateeID string,
	startDate, endDate time.Time,
	reason *string,
) (*repository.Delegation, error) {
	if delegatorID == "" || delegateeID == "" {
		return nil, apperrors.InvalidInput("delegator_id", "delegator and delegatee are required")
	}
	if delegatorID == delegateeID {
		return nil, apperrors.NewReason(apperrors.ErrCodeUnauthorized, apperrors.ReasonSelfDelegation,
			"cannot delegate approval authority to oneself")
	}
	if startDate.After(endDate) {
		return nil, apperrors.NewReason(apperrors.ErrCodeInvalidInput, apperrors.ReasonInvalidDateRange,
			"start_date must not be after end_date")
	}

	d := &repository.Delegation{
		TenantID:    tenantID,
		DelegatorID: delegatorID,
		DelegateeID: delegateeID,
		StartDate:   startDate,
		EndDate:     endDate,
		Reason:      reason,
	}
	if err := s.delegations.Create(ctx, d); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TenantID:    tenantID,
		EntityType:  "DELEGATION",
		EntityID:    d.ID,
		Action:      "DELEGATION_CREATED",
		PerformedBy: delegatorID,
		Metadata: map[string]interface{}{
			"delegatee_id": delegateeID,
			"start_date":   startDate,
			"end_date":     endDate,
		},
	})

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("delegation_id", d.ID).
		Str("delegator_id", delegatorID).
		Str("delegatee_id", delegateeID).
		Msg("Delegation created")
	return d, nil
}

// List returns delegations, optionally filtered to one delegator.
func (s *DelegationService) List(ctx context.Context, tenantID string, delegatorID *string) ([]*repository.Delegation, error) {
	return s.delegations.List(ctx, tenantID, delegatorID)
}

// Deactivate soft-disables a delegation. Only the delegator or a tenant
// admin may do this; the state is terminal and a new delegation must be
// created to resume.
func (s *DelegationService) Deactivate(ctx context.Context, tenantID, delegationID, actorID string, actorIsAdmin bool) error {
	d, err := s.delegations.GetByID(ctx, tenantID, delegationID)
	if err != nil {
		return err
	}
	if d.DelegatorID != actorID && !actorIsAdmin {
		return apperrors.NewReason(apperrors.ErrCodeUnauthorized, apperrors.ReasonNotAuthorized,
			"only the delegator or a tenant admin can deactivate a delegation")
	}

	if err := s.delegations.Deactivate(ctx, tenantID, delegationID); err != nil {
		return err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		TenantID:    tenantID,
		EntityType:  "DELEGATION",
		EntityID:    delegationID,
		Action:      "DELEGATION_DEACTIVATED",
		PerformedBy: actorID,
	})
	return nil
}

// ── Resolver ──────────────────────────────────────────────────────────────────

// ResolveActor decides whether the actor may act for requiredRole and whose
// identity the action is recorded under. Direct role membership wins;
// otherwise a currently-active delegation from a delegator holding the role
// lets the actor act as that delegator. Delegation is single-hop: a
// delegator's own incoming delegations are never chased.
//
// The time window is re-evaluated at the instant of each call, never cached.
func (s *DelegationService) ResolveActor(ctx context.Context, tenantID, requiredRole, actorID string) (string, error) {
	has, err := s.members.HasRole(ctx, tenantID, actorID, requiredRole)
	if err != nil {
		return "", err
	}
	if has {
		return actorID, nil
	}

	active, err := s.delegations.ActiveForDelegatee(ctx, tenantID, actorID, s.now())
	if err != nil {
		return "", err
	}
	for _, d := range active {
		has, err := s.members.HasRole(ctx, tenantID, d.DelegatorID, requiredRole)
		if err != nil {
			return "", err
		}
		if has {
			return d.DelegatorID, nil
		}
	}

	return "", apperrors.NewReason(apperrors.ErrCodeUnauthorized, apperrors.ReasonNotAuthorized,
		"actor does not hold the required role directly or by delegation")
}

// ActableRoles returns every role the actor can currently act for: their own
// tenant roles plus the roles of delegators with an active window naming
// them as delegatee.
func (s *DelegationService) ActableRoles(ctx context.Context, tenantID, actorID string) ([]string, error) {
	roles, err := s.members.RolesForUser(ctx, tenantID, actorID)
	if err != nil {
		return nil, err
	}

	active, err := s.delegations.ActiveForDelegatee(ctx, tenantID, actorID, s.now())
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		delegators := make([]string, 0, len(active))
		for _, d := range active {
			delegators = append(delegators, d.DelegatorID)
		}
		delegated, err := s.members.RolesForUsers(ctx, tenantID, delegators)
		if err != nil {
			return nil, err
		}
		roles = mergeRoles(roles, delegated)
	}
	return roles, nil
}

func mergeRoles(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, r := range a {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// appendAudit writes an audit entry and logs a warning on failure.
func (s *DelegationService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("tenant_id", entry.TenantID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
