package handler

import (
	"time"

	"github.com/peoplecore/be-hrm-approvals/internal/repository"
)

// Response shapes returned over HTTP.

type stepResponse struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	EntityType      string     `json:"entity_type"`
	EntityID        string     `json:"entity_id"`
	LevelOrder      int        `json:"level_order"`
	RequiredRole    string     `json:"required_role"`
	Status          string     `json:"status"`
	ApproverID      *string    `json:"approver_id,omitempty"`
	ActionAt        *time.Time `json:"action_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toStepResponse(s *repository.ApprovalStep) stepResponse {
	return stepResponse{
		ID:              s.ID,
		TenantID:        s.TenantID,
		EntityType:      s.EntityType,
		EntityID:        s.EntityID,
		LevelOrder:      s.LevelOrder,
		RequiredRole:    s.RequiredRole,
		Status:          s.Status,
		ApproverID:      s.ApproverID,
		ActionAt:        s.ActionAt,
		Notes:           s.Notes,
		RejectionReason: s.RejectionReason,
		CreatedAt:       s.CreatedAt,
	}
}

func toStepResponses(steps []*repository.ApprovalStep) []stepResponse {
	out := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, toStepResponse(s))
	}
	return out
}

type policyResponse struct {
	ID        string                   `json:"id"`
	TenantID  string                   `json:"tenant_id"`
	Name      string                   `json:"name"`
	Module    string                   `json:"module"`
	IsActive  bool                     `json:"is_active"`
	Priority  int                      `json:"priority"`
	MinAmount *int64                   `json:"min_amount,omitempty"`
	MaxAmount *int64                   `json:"max_amount,omitempty"`
	Levels    []repository.PolicyLevel `json:"levels"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func toPolicyResponse(p *repository.ApprovalPolicy) policyResponse {
	return policyResponse{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Name:      p.Name,
		Module:    p.Module,
		IsActive:  p.IsActive,
		Priority:  p.Priority,
		MinAmount: p.MinAmount,
		MaxAmount: p.MaxAmount,
		Levels:    p.Levels,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toPolicyResponses(policies []*repository.ApprovalPolicy) []policyResponse {
	out := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toPolicyResponse(p))
	}
	return out
}

type delegationResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	DelegatorID string    `json:"delegator_id"`
	DelegateeID string    `json:"delegatee_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsActive    bool      `json:"is_active"`
	Reason      *string   `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toDelegationResponse(d *repository.Delegation) delegationResponse {
	return delegationResponse{
		ID:          d.ID,
		TenantID:    d.TenantID,
		DelegatorID: d.DelegatorID,
		DelegateeID: d.DelegateeID,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		IsActive:    d.IsActive,
		Reason:      d.Reason,
		CreatedAt:   d.CreatedAt,
	}
}

func toDelegationResponses(delegations []*repository.Delegation) []delegationResponse {
	out := make([]delegationResponse, 0, len(delegations))
	for _, d := range delegations {
		out = append(out, toDelegationResponse(d))
	}
	return out
}

type auditResponse struct {
	ID          string                 `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	StepID      *string                `json:"step_id,omitempty"`
	Action      string                 `json:"action"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func toAuditResponses(entries []*repository.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:          e.ID,
			EntityType:  e.EntityType,
			EntityID:    e.EntityID,
			StepID:      e.StepID,
			Action:      e.Action,
			PerformedBy: e.PerformedBy,
			PerformedAt: e.PerformedAt,
			Metadata:    e.Metadata,
		})
	}
	return out
}
