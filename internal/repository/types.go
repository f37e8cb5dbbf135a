package repository

import "time"

// ── Domain types for the approval workflow engine ────────────────────────────

// Step statuses. A step transitions exactly once out of PENDING.
const (
	StepStatusPending  = "PENDING"
	StepStatusApproved = "APPROVED"
	StepStatusRejected = "REJECTED"
	StepStatusSkipped  = "SKIPPED"
)

// PolicyLevel is one entry in a policy's levels JSONB array.
type PolicyLevel struct {
	Level int    `json:"level"`
	Role  string `json:"role"`
}

// ApprovalPolicy is a tenant-configured template describing how many approval
// levels a module's entities require and which role each level needs.
type ApprovalPolicy struct {
	ID        string
	TenantID  string
	Name      string
	Module    string // LEAVE_REQUEST | PURCHASE_REQUEST | ASSET_REQUEST | ...
	IsActive  bool
	Priority  int    // rank; 1 = highest precedence
	MinAmount *int64 // cents; nil = no lower bound
	MaxAmount *int64 // cents; nil = no upper bound
	Levels    []PolicyLevel
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApprovalStep is the per-submission, per-level instance of a policy level.
type ApprovalStep struct {
	ID              string
	TenantID        string
	EntityType      string
	EntityID        string
	LevelOrder      int
	RequiredRole    string
	Status          string
	ApproverID      *string
	ActionAt        *time.Time
	Notes           *string
	RejectionReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Delegation is a time-bounded grant letting one user act with another
// user's role for approval purposes. Deactivation is soft; rows are never
// deleted so the audit trail of who could act for whom survives.
type Delegation struct {
	ID          string
	TenantID    string
	DelegatorID string
	DelegateeID string
	StartDate   time.Time
	EndDate     time.Time
	IsActive    bool
	Reason      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID          string
	TenantID    string
	EntityType  string
	EntityID    string
	StepID      *string
	Action      string // SUBMITTED | APPROVED | REJECTED | DELEGATION_CREATED | DELEGATION_DEACTIVATED
	PerformedBy string
	PerformedAt time.Time
	Metadata    map[string]interface{} // arbitrary JSON context
}
