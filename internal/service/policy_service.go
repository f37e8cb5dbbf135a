package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// PolicyService owns policy administration and policy resolution.
type PolicyService struct {
	policies PolicyStore
	log      zerolog.Logger
}

// NewPolicyService creates a new PolicyService.
func NewPolicyService(policies PolicyStore, log zerolog.Logger) *PolicyService {
	return &PolicyService{policies: policies, log: log}
}

// Resolve selects the single applicable active policy for a submission.
// Candidates are evaluated in ascending priority, ties broken oldest-first,
// so adding overlapping policies over time never reshuffles existing winners.
func (s *PolicyService) Resolve(ctx context.Context, tenantID, module string, amount *int64) (*repository.ApprovalPolicy, error) {
	candidates, err := s.policies.ListActiveForModule(ctx, tenantID, module)
	if err != nil {
		return nil, err
	}

	for _, p := range candidates {
		if policyMatches(p, amount) {
			return p, nil
		}
	}
	return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonPolicyNotFound,
		fmt.Sprintf("no active approval policy matches module %s", module))
}

// policyMatches checks the amount against the policy bounds. Both bounds are
// inclusive; a nil bound is unbounded on that side. A nil amount matches
// only policies with no bounds at all.
func policyMatches(p *repository.ApprovalPolicy, amount *int64) bool {
	if amount == nil {
		return p.MinAmount == nil && p.MaxAmount == nil
	}
	if p.MinAmount != nil && *amount < *p.MinAmount {
		return false
	}
	if p.MaxAmount != nil && *amount > *p.MaxAmount {
		return false
	}
	return true
}

// ── Policy administration ─────────────────────────────────────────────────────

// Create validates and persists a new policy.
func (s *PolicyService) Create(ctx context.Context, p *repository.ApprovalPolicy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}

	if err := s.policies.Create(ctx, p); err != nil {
		return err
	}

	s.log.Info().
		Str("tenant_id", p.TenantID).
		Str("policy_id", p.ID).
		Str("module", p.Module).
		Int("levels", len(p.Levels)).
		Msg("Approval policy created")
	return nil
}

// Get returns one policy.
func (s *PolicyService) Get(ctx context.Context, tenantID, id string) (*repository.ApprovalPolicy, error) {
	return s.policies.GetByID(ctx, tenantID, id)
}

// List returns a tenant's policies.
func (s *PolicyService) List(ctx context.Context, tenantID string, activeOnly bool) ([]*repository.ApprovalPolicy, error) {
	return s.policies.List(ctx, tenantID, activeOnly)
}

// Update validates and persists changes to a policy. Steps already
// materialized from the previous level template are not affected.
func (s *PolicyService) Update(ctx context.Context, p *repository.ApprovalPolicy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	return s.policies.Update(ctx, p)
}

// Delete removes a policy.
func (s *PolicyService) Delete(ctx context.Context, tenantID, id string) error {
	return s.policies.Delete(ctx, tenantID, id)
}

// validatePolicy checks level ordering and amount bounds. A policy with zero
// levels is legal; submissions against it fail with POLICY_HAS_NO_LEVELS and
// the collaborator decides whether that means auto-approval.
func validatePolicy(p *repository.ApprovalPolicy) error {
	if p.Module == "" {
		return apperrors.InvalidInput("module", "module is required")
	}
	if p.Name == "" {
		return apperrors.InvalidInput("name", "name is required")
	}
	if p.MinAmount != nil && p.MaxAmount != nil && *p.MinAmount > *p.MaxAmount {
		return apperrors.InvalidInput("min_amount", "min_amount exceeds max_amount")
	}

	levels := make([]repository.PolicyLevel, len(p.Levels))
	copy(levels, p.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	for i, lvl := range levels {
		if lvl.Role == "" {
			return apperrors.InvalidInput("levels", fmt.Sprintf("level %d has no role", lvl.Level))
		}
		if lvl.Level != i+1 {
			return apperrors.InvalidInput("levels", "level orders must be 1..n with no gaps or duplicates")
		}
	}
	p.Levels = levels
	return nil
}
