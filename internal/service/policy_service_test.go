package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

func newPolicyService() (*PolicyService, *fakePolicyStore) {
	store := &fakePolicyStore{}
	return NewPolicyService(store, zerolog.Nop()), store
}

func amount(v int64) *int64 { return &v }

func seedPolicy(t *testing.T, s *PolicyService, p *repository.ApprovalPolicy) *repository.ApprovalPolicy {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func leavePolicy(tenantID string, priority int, min, max *int64) *repository.ApprovalPolicy {
	return &repository.ApprovalPolicy{
		TenantID:  tenantID,
		Name:      "leave approval",
		Module:    "LEAVE_REQUEST",
		IsActive:  true,
		Priority:  priority,
		MinAmount: min,
		MaxAmount: max,
		Levels: []repository.PolicyLevel{
			{Level: 1, Role: "MANAGER"},
			{Level: 2, Role: "HR_MANAGER"},
		},
	}
}

func TestPolicyService_Resolve_LowestPriorityWins(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	low := seedPolicy(t, svc, leavePolicy("t1", 2, nil, nil))
	high := seedPolicy(t, svc, leavePolicy("t1", 1, nil, nil))

	got, err := svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(100))
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)

	// Deactivating the winner exposes the next-best deterministically.
	high.IsActive = false
	require.NoError(t, svc.Update(ctx, high))

	got, err = svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(100))
	require.NoError(t, err)
	assert.Equal(t, low.ID, got.ID)
}

func TestPolicyService_Resolve_TieBrokenOldestWins(t *testing.T) {
	store := &fakePolicyStore{}
	svc := NewPolicyService(store, zerolog.Nop())
	ctx := context.Background()

	older := leavePolicy("t1", 1, nil, nil)
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, svc.Create(ctx, older))

	newer := leavePolicy("t1", 1, nil, nil)
	newer.CreatedAt = time.Now()
	require.NoError(t, svc.Create(ctx, newer))

	got, err := svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(100))
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
}

func TestPolicyService_Resolve_AmountBounds(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	banded := seedPolicy(t, svc, leavePolicy("t1", 1, amount(100), amount(500)))
	unbounded := seedPolicy(t, svc, leavePolicy("t1", 2, nil, nil))

	// Bounds are inclusive on both sides.
	got, err := svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(100))
	require.NoError(t, err)
	assert.Equal(t, banded.ID, got.ID)

	got, err = svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(500))
	require.NoError(t, err)
	assert.Equal(t, banded.ID, got.ID)

	// Out of band falls through to the unbounded policy.
	got, err = svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(501))
	require.NoError(t, err)
	assert.Equal(t, unbounded.ID, got.ID)

	// A nil amount matches only fully unbounded policies.
	got, err = svc.Resolve(ctx, "t1", "LEAVE_REQUEST", nil)
	require.NoError(t, err)
	assert.Equal(t, unbounded.ID, got.ID)
}

func TestPolicyService_Resolve_NoMatch(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	seedPolicy(t, svc, leavePolicy("t1", 1, amount(100), amount(500)))

	_, err := svc.Resolve(ctx, "t1", "LEAVE_REQUEST", amount(50))
	require.Error(t, err)
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonPolicyNotFound))

	// Other modules and other tenants see nothing.
	_, err = svc.Resolve(ctx, "t1", "PURCHASE_REQUEST", amount(200))
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonPolicyNotFound))

	_, err = svc.Resolve(ctx, "t2", "LEAVE_REQUEST", amount(200))
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonPolicyNotFound))
}

func TestPolicyService_Create_ValidatesLevels(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	p := leavePolicy("t1", 1, nil, nil)
	p.Levels = []repository.PolicyLevel{
		{Level: 1, Role: "MANAGER"},
		{Level: 3, Role: "HR_MANAGER"}, // gap
	}
	err := svc.Create(ctx, p)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	p.Levels = []repository.PolicyLevel{
		{Level: 1, Role: "MANAGER"},
		{Level: 1, Role: "HR_MANAGER"}, // duplicate
	}
	err = svc.Create(ctx, p)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	p.Levels = []repository.PolicyLevel{{Level: 1, Role: ""}}
	err = svc.Create(ctx, p)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	// Levels supplied out of order are normalized, not rejected.
	p.Levels = []repository.PolicyLevel{
		{Level: 2, Role: "HR_MANAGER"},
		{Level: 1, Role: "MANAGER"},
	}
	require.NoError(t, svc.Create(ctx, p))
	assert.Equal(t, 1, p.Levels[0].Level)
	assert.Equal(t, "MANAGER", p.Levels[0].Role)
}

func TestPolicyService_Create_ValidatesBounds(t *testing.T) {
	svc, _ := newPolicyService()

	p := leavePolicy("t1", 1, amount(500), amount(100))
	err := svc.Create(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestPolicyService_Create_AllowsZeroLevels(t *testing.T) {
	svc, _ := newPolicyService()

	p := leavePolicy("t1", 1, nil, nil)
	p.Levels = nil
	require.NoError(t, svc.Create(context.Background(), p))
}
