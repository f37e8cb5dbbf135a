package service

import (
	"context"
	"time"

	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// Storage interfaces consumed by the services. The PostgreSQL
// implementations live in internal/repository; tests substitute in-memory
// fakes that honor the same conditional-transition semantics.

// PolicyStore persists approval policies.
type PolicyStore interface {
	Create(ctx context.Context, p *repository.ApprovalPolicy) error
	GetByID(ctx context.Context, tenantID, id string) (*repository.ApprovalPolicy, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]*repository.ApprovalPolicy, error)
	ListActiveForModule(ctx context.Context, tenantID, module string) ([]*repository.ApprovalPolicy, error)
	Update(ctx context.Context, p *repository.ApprovalPolicy) error
	Delete(ctx context.Context, tenantID, id string) error
}

// StepStore persists approval steps. Approve and Reject are atomic
// conditional transitions: they succeed only while the step is PENDING and
// no earlier level of the entity is still open.
type StepStore interface {
	CreateChain(ctx context.Context, steps []*repository.ApprovalStep) error
	GetByID(ctx context.Context, tenantID, id string) (*repository.ApprovalStep, error)
	GetChain(ctx context.Context, tenantID, entityType, entityID string) ([]*repository.ApprovalStep, error)
	Approve(ctx context.Context, tenantID, id, approverID string, notes *string) (*repository.ApprovalStep, error)
	Reject(ctx context.Context, tenantID, id, approverID, reason string) (*repository.ApprovalStep, error)
	CountPending(ctx context.Context, tenantID, entityType, entityID string) (int, error)
	GetPendingForRoles(ctx context.Context, tenantID string, roles []string) ([]*repository.ApprovalStep, error)
}

// DelegationStore persists approver delegations.
type DelegationStore interface {
	Create(ctx context.Context, d *repository.Delegation) error
	GetByID(ctx context.Context, tenantID, id string) (*repository.Delegation, error)
	List(ctx context.Context, tenantID string, delegatorID *string) ([]*repository.Delegation, error)
	ActiveForDelegatee(ctx context.Context, tenantID, delegateeID string, now time.Time) ([]*repository.Delegation, error)
	Deactivate(ctx context.Context, tenantID, id string) error
}

// RoleDirectory reads current tenant role membership.
type RoleDirectory interface {
	HasRole(ctx context.Context, tenantID, userID, role string) (bool, error)
	RolesForUser(ctx context.Context, tenantID, userID string) ([]string, error)
	RolesForUsers(ctx context.Context, tenantID string, userIDs []string) ([]string, error)
}

// AuditLog appends and reads the approval audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*repository.AuditEntry, error)
}

// EventPublisher emits workflow events for external consumers. Publishing
// is best-effort; implementations log failures and never propagate them.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, eventType, tenantID, entityType, entityID, actorID string, payload map[string]interface{})
}

// WorkflowListener is implemented by the collaborating domain service that
// owns the submitted entity. The engine reports terminal outcomes; marking
// the entity itself approved or rejected is the collaborator's job.
type WorkflowListener interface {
	OnWorkflowComplete(ctx context.Context, tenantID, entityType, entityID string) error
	OnWorkflowRejected(ctx context.Context, tenantID, entityType, entityID, reason string) error
}

// NoopListener is used when no collaborator callback is registered.
type NoopListener struct{}

func (NoopListener) OnWorkflowComplete(context.Context, string, string, string) error {
	return nil
}

func (NoopListener) OnWorkflowRejected(context.Context, string, string, string, string) error {
	return nil
}
