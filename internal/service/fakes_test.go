package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// In-memory stores reproducing the repository semantics, including the
// conditional step transitions the SQL layer enforces with atomic updates.

// ── fakePolicyStore ───────────────────────────────────────────────────────────

type fakePolicyStore struct {
	mu       sync.Mutex
	policies []*repository.ApprovalPolicy
}

func (f *fakePolicyStore) Create(_ context.Context, p *repository.ApprovalPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New().String()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	f.policies = append(f.policies, &cp)
	return nil
}

func (f *fakePolicyStore) GetByID(_ context.Context, tenantID, id string) (*repository.ApprovalPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.TenantID == tenantID && p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("approval_policy", id)
}

func (f *fakePolicyStore) List(_ context.Context, tenantID string, activeOnly bool) ([]*repository.ApprovalPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalPolicy
	for _, p := range f.policies {
		if p.TenantID == tenantID && (!activeOnly || p.IsActive) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePolicyStore) ListActiveForModule(_ context.Context, tenantID, module string) ([]*repository.ApprovalPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalPolicy
	for _, p := range f.policies {
		if p.TenantID == tenantID && p.Module == module && p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakePolicyStore) Update(_ context.Context, p *repository.ApprovalPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.policies {
		if existing.TenantID == p.TenantID && existing.ID == p.ID {
			cp := *p
			cp.CreatedAt = existing.CreatedAt
			f.policies[i] = &cp
			return nil
		}
	}
	return apperrors.NotFound("approval_policy", p.ID)
}

func (f *fakePolicyStore) Delete(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.policies {
		if p.TenantID == tenantID && p.ID == id {
			f.policies = append(f.policies[:i], f.policies[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("approval_policy", id)
}

// ── fakeStepStore ─────────────────────────────────────────────────────────────

type fakeStepStore struct {
	mu    sync.Mutex
	steps []*repository.ApprovalStep
}

func (f *fakeStepStore) CreateChain(_ context.Context, steps []*repository.ApprovalStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.steps {
		for _, n := range steps {
			if s.TenantID == n.TenantID && s.EntityType == n.EntityType && s.EntityID == n.EntityID {
				return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonWorkflowAlreadyExists,
					"approval steps already exist for this entity")
			}
		}
	}
	now := time.Now()
	for _, n := range steps {
		n.ID = uuid.New().String()
		n.Status = repository.StepStatusPending
		n.CreatedAt = now
		cp := *n
		f.steps = append(f.steps, &cp)
	}
	return nil
}

func (f *fakeStepStore) GetByID(_ context.Context, tenantID, id string) (*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.find(tenantID, id)
	if s == nil {
		return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonStepNotFound,
			"approval step not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStepStore) GetChain(_ context.Context, tenantID, entityType, entityID string) ([]*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalStep
	for _, s := range f.steps {
		if s.TenantID == tenantID && s.EntityType == entityType && s.EntityID == entityID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LevelOrder < out[j].LevelOrder })
	return out, nil
}

func (f *fakeStepStore) Approve(_ context.Context, tenantID, id, approverID string, notes *string) (*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.find(tenantID, id)
	if s == nil {
		return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonStepNotFound,
			"approval step not found")
	}
	if err := f.transitionable(s); err != nil {
		return nil, err
	}
	now := time.Now()
	s.Status = repository.StepStatusApproved
	s.ApproverID = &approverID
	s.ActionAt = &now
	s.Notes = notes
	cp := *s
	return &cp, nil
}

func (f *fakeStepStore) Reject(_ context.Context, tenantID, id, approverID, reason string) (*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.find(tenantID, id)
	if s == nil {
		return nil, apperrors.NewReason(apperrors.ErrCodeNotFound, apperrors.ReasonStepNotFound,
			"approval step not found")
	}
	if err := f.transitionable(s); err != nil {
		return nil, err
	}
	now := time.Now()
	s.Status = repository.StepStatusRejected
	s.ApproverID = &approverID
	s.ActionAt = &now
	s.RejectionReason = &reason
	for _, sib := range f.steps {
		if sib.TenantID == s.TenantID && sib.EntityType == s.EntityType && sib.EntityID == s.EntityID &&
			sib.ID != s.ID && sib.Status == repository.StepStatusPending {
			sib.Status = repository.StepStatusSkipped
		}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStepStore) CountPending(_ context.Context, tenantID, entityType, entityID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.steps {
		if s.TenantID == tenantID && s.EntityType == entityType && s.EntityID == entityID &&
			s.Status == repository.StepStatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeStepStore) GetPendingForRoles(_ context.Context, tenantID string, roles []string) ([]*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var out []*repository.ApprovalStep
	for _, s := range f.steps {
		if s.TenantID != tenantID || s.Status != repository.StepStatusPending || !roleSet[s.RequiredRole] {
			continue
		}
		if s.LevelOrder != f.minPendingLevel(s) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStepStore) find(tenantID, id string) *repository.ApprovalStep {
	for _, s := range f.steps {
		if s.TenantID == tenantID && s.ID == id {
			return s
		}
	}
	return nil
}

// transitionable mirrors the SQL conditional update guards.
func (f *fakeStepStore) transitionable(s *repository.ApprovalStep) error {
	if s.Status != repository.StepStatusPending {
		return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepNotPending,
			"step is not pending")
	}
	if s.LevelOrder != f.minPendingLevel(s) {
		return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonStepOutOfOrder,
			"an earlier step of this entity is still pending")
	}
	return nil
}

func (f *fakeStepStore) minPendingLevel(s *repository.ApprovalStep) int {
	min := s.LevelOrder
	for _, e := range f.steps {
		if e.TenantID == s.TenantID && e.EntityType == s.EntityType && e.EntityID == s.EntityID &&
			e.Status == repository.StepStatusPending && e.LevelOrder < min {
			min = e.LevelOrder
		}
	}
	return min
}

// ── fakeDelegationStore ───────────────────────────────────────────────────────

type fakeDelegationStore struct {
	mu          sync.Mutex
	delegations []*repository.Delegation
}

func (f *fakeDelegationStore) Create(_ context.Context, d *repository.Delegation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.delegations {
		if e.TenantID == d.TenantID && e.DelegatorID == d.DelegatorID && e.IsActive &&
			!e.StartDate.After(d.EndDate) && !e.EndDate.Before(d.StartDate) {
			return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonOverlappingDelegation,
				"delegator already has an active delegation overlapping this window")
		}
	}
	d.ID = uuid.New().String()
	d.IsActive = true
	cp := *d
	f.delegations = append(f.delegations, &cp)
	return nil
}

func (f *fakeDelegationStore) GetByID(_ context.Context, tenantID, id string) (*repository.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.delegations {
		if d.TenantID == tenantID && d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("delegation", id)
}

func (f *fakeDelegationStore) List(_ context.Context, tenantID string, delegatorID *string) ([]*repository.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Delegation
	for _, d := range f.delegations {
		if d.TenantID != tenantID {
			continue
		}
		if delegatorID != nil && d.DelegatorID != *delegatorID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeDelegationStore) ActiveForDelegatee(_ context.Context, tenantID, delegateeID string, now time.Time) ([]*repository.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Delegation
	for _, d := range f.delegations {
		if d.TenantID == tenantID && d.DelegateeID == delegateeID && d.IsActive &&
			!d.StartDate.After(now) && !d.EndDate.Before(now) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDelegationStore) Deactivate(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.delegations {
		if d.TenantID == tenantID && d.ID == id {
			if !d.IsActive {
				return apperrors.NewReason(apperrors.ErrCodeConflict, apperrors.ReasonDelegationNotActive,
					"delegation is already inactive")
			}
			d.IsActive = false
			return nil
		}
	}
	return apperrors.NotFound("delegation", id)
}

// ── fakeRoleDirectory ─────────────────────────────────────────────────────────

type fakeRoleDirectory struct {
	// tenant -> user -> roles
	roles map[string]map[string][]string
}

func newFakeRoleDirectory() *fakeRoleDirectory {
	return &fakeRoleDirectory{roles: make(map[string]map[string][]string)}
}

func (f *fakeRoleDirectory) grant(tenantID, userID string, roles ...string) {
	if f.roles[tenantID] == nil {
		f.roles[tenantID] = make(map[string][]string)
	}
	f.roles[tenantID][userID] = append(f.roles[tenantID][userID], roles...)
}

func (f *fakeRoleDirectory) HasRole(_ context.Context, tenantID, userID, role string) (bool, error) {
	for _, r := range f.roles[tenantID][userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRoleDirectory) RolesForUser(_ context.Context, tenantID, userID string) ([]string, error) {
	return append([]string(nil), f.roles[tenantID][userID]...), nil
}

func (f *fakeRoleDirectory) RolesForUsers(_ context.Context, tenantID string, userIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, u := range userIDs {
		for _, r := range f.roles[tenantID][u] {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// ── fakeAuditLog ──────────────────────────────────────────────────────────────

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (f *fakeAuditLog) Append(_ context.Context, entry *repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.New().String()
	entry.PerformedAt = time.Now()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAuditLog) GetByEntity(_ context.Context, tenantID, entityType, entityID string) ([]*repository.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAuditLog) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// ── recording listener and publisher ─────────────────────────────────────────

type recordingListener struct {
	mu        sync.Mutex
	completed []string // entityIDs
	rejected  []string
	reasons   []string
}

func (l *recordingListener) OnWorkflowComplete(_ context.Context, _, _, entityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, entityID)
	return nil
}

func (l *recordingListener) OnWorkflowRejected(_ context.Context, _, _, entityID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejected = append(l.rejected, entityID)
	l.reasons = append(l.reasons, reason)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string // eventType
}

func (p *recordingPublisher) PublishWorkflowEvent(_ context.Context, eventType, _, _, _, _ string, _ map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}
