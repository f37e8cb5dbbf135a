package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
	"github.com/peoplecore/be-hrm-approvals/internal/service"
)

// HTTPHandler exposes the engine over HTTP. Authentication happens upstream;
// requests carry an already-verified tenant_id / actor_id pair.
type HTTPHandler struct {
	workflows   *service.WorkflowService
	policies    *service.PolicyService
	delegations *service.DelegationService
	validate    *validator.Validate
	log         zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	workflows *service.WorkflowService,
	policies *service.PolicyService,
	delegations *service.DelegationService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		workflows:   workflows,
		policies:    policies,
		delegations: delegations,
		validate:    validator.New(),
		log:         log,
	}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/workflows/submit", h.Submit)
	mux.HandleFunc("/api/v1/workflows/chain", h.GetChain)
	mux.HandleFunc("/api/v1/workflows/pending", h.GetPending)
	mux.HandleFunc("/api/v1/steps/approve", h.Approve)
	mux.HandleFunc("/api/v1/steps/reject", h.Reject)
	mux.HandleFunc("/api/v1/policies", h.Policies)
	mux.HandleFunc("/api/v1/policies/get", h.GetPolicy)
	mux.HandleFunc("/api/v1/policies/update", h.UpdatePolicy)
	mux.HandleFunc("/api/v1/policies/delete", h.DeletePolicy)
	mux.HandleFunc("/api/v1/delegations", h.Delegations)
	mux.HandleFunc("/api/v1/delegations/deactivate", h.DeactivateDelegation)
	mux.HandleFunc("/api/v1/approvals/history", h.GetHistory)
}

// ── Workflow endpoints ────────────────────────────────────────────────────────

type submitRequest struct {
	TenantID    string `json:"tenant_id" validate:"required"`
	Module      string `json:"module" validate:"required"`
	Amount      *int64 `json:"amount"`
	EntityType  string `json:"entity_type" validate:"required"`
	EntityID    string `json:"entity_id" validate:"required"`
	SubmittedBy string `json:"submitted_by" validate:"required"`
}

// Submit routes a newly submitted entity into its approval chain.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}

	steps, err := h.workflows.Submit(r.Context(), req.TenantID, req.Module, req.Amount, req.EntityType, req.EntityID, req.SubmittedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"steps": toStepResponses(steps)})
}

// GetChain returns the ordered step set for an entity.
func (h *HTTPHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if tenantID == "" || entityType == "" || entityID == "" {
		http.Error(w, "tenant_id, entity_type and entity_id are required", http.StatusBadRequest)
		return
	}

	steps, err := h.workflows.GetChain(r.Context(), tenantID, entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps": toStepResponses(steps)})
}

// GetPending returns the steps currently awaiting action from an actor.
func (h *HTTPHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	actorID := r.URL.Query().Get("actor_id")
	if tenantID == "" || actorID == "" {
		http.Error(w, "tenant_id and actor_id are required", http.StatusBadRequest)
		return
	}

	steps, err := h.workflows.GetPendingForActor(r.Context(), tenantID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps": toStepResponses(steps)})
}

type approveRequest struct {
	TenantID string  `json:"tenant_id" validate:"required"`
	StepID   string  `json:"step_id" validate:"required"`
	ActorID  string  `json:"actor_id" validate:"required"`
	Notes    *string `json:"notes"`
}

// Approve records approval of a step.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}

	step, complete, err := h.workflows.Approve(r.Context(), req.TenantID, req.StepID, req.ActorID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"step":              toStepResponse(step),
		"workflow_complete": complete,
	})
}

type rejectRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	StepID   string `json:"step_id" validate:"required"`
	ActorID  string `json:"actor_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// Reject records rejection of a step and terminates the chain.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	step, err := h.workflows.Reject(r.Context(), req.TenantID, req.StepID, req.ActorID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"step":              toStepResponse(step),
		"workflow_rejected": true,
	})
}

// GetHistory returns the audit trail for an entity.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if tenantID == "" || entityType == "" || entityID == "" {
		http.Error(w, "tenant_id, entity_type and entity_id are required", http.StatusBadRequest)
		return
	}

	entries, err := h.workflows.GetHistory(r.Context(), tenantID, entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": toAuditResponses(entries)})
}

// ── Policy endpoints ──────────────────────────────────────────────────────────

type policyLevelRequest struct {
	Level int    `json:"level" validate:"required,min=1"`
	Role  string `json:"role" validate:"required"`
}

type createPolicyRequest struct {
	TenantID  string               `json:"tenant_id" validate:"required"`
	Name      string               `json:"name" validate:"required"`
	Module    string               `json:"module" validate:"required"`
	IsActive  bool                 `json:"is_active"`
	Priority  int                  `json:"priority" validate:"min=1"`
	MinAmount *int64               `json:"min_amount"`
	MaxAmount *int64               `json:"max_amount"`
	Levels    []policyLevelRequest `json:"levels" validate:"dive"`
}

// Policies lists (GET) or creates (POST) approval policies.
func (h *HTTPHandler) Policies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listPolicies(w, r)
	case http.MethodPost:
		h.createPolicy(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listPolicies(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	activeOnly := r.URL.Query().Get("active_only") == "true"

	policies, err := h.policies.List(r.Context(), tenantID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"policies": toPolicyResponses(policies)})
}

func (h *HTTPHandler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := policyFromRequest(&req)
	if err := h.policies.Create(r.Context(), p); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPolicyResponse(p))
}

// GetPolicy returns one policy.
func (h *HTTPHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	id := r.URL.Query().Get("id")
	if tenantID == "" || id == "" {
		http.Error(w, "tenant_id and id are required", http.StatusBadRequest)
		return
	}

	p, err := h.policies.Get(r.Context(), tenantID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPolicyResponse(p))
}

type updatePolicyRequest struct {
	ID string `json:"id" validate:"required"`
	createPolicyRequest
}

// UpdatePolicy replaces a policy's template. In-flight chains keep the steps
// they were materialized with.
func (h *HTTPHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := policyFromRequest(&req.createPolicyRequest)
	p.ID = req.ID
	if err := h.policies.Update(r.Context(), p); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPolicyResponse(p))
}

// DeletePolicy removes a policy.
func (h *HTTPHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	id := r.URL.Query().Get("id")
	if tenantID == "" || id == "" {
		http.Error(w, "tenant_id and id are required", http.StatusBadRequest)
		return
	}

	if err := h.policies.Delete(r.Context(), tenantID, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Delegation endpoints ──────────────────────────────────────────────────────

type createDelegationRequest struct {
	TenantID    string    `json:"tenant_id" validate:"required"`
	DelegatorID string    `json:"delegator_id" validate:"required"`
	DelegateeID string    `json:"delegatee_id" validate:"required"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	Reason      *string   `json:"reason"`
}

// Delegations lists (GET) or creates (POST) approver delegations.
func (h *HTTPHandler) Delegations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDelegations(w, r)
	case http.MethodPost:
		h.createDelegation(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listDelegations(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	var delegatorID *string
	if v := r.URL.Query().Get("delegator_id"); v != "" {
		delegatorID = &v
	}

	delegations, err := h.delegations.List(r.Context(), tenantID, delegatorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"delegations": toDelegationResponses(delegations)})
}

func (h *HTTPHandler) createDelegation(w http.ResponseWriter, r *http.Request) {
	var req createDelegationRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.delegations.Create(r.Context(), req.TenantID, req.DelegatorID, req.DelegateeID, req.StartDate, req.EndDate, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toDelegationResponse(d))
}

type deactivateDelegationRequest struct {
	TenantID     string `json:"tenant_id" validate:"required"`
	DelegationID string `json:"delegation_id" validate:"required"`
	ActorID      string `json:"actor_id" validate:"required"`
	ActorIsAdmin bool   `json:"actor_is_admin"`
}

// DeactivateDelegation soft-disables a delegation.
func (h *HTTPHandler) DeactivateDelegation(w http.ResponseWriter, r *http.Request) {
	var req deactivateDelegationRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.delegations.Deactivate(r.Context(), req.TenantID, req.DelegationID, req.ActorID, req.ActorIsAdmin)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Shared helpers ────────────────────────────────────────────────────────────

// decode parses and validates a POST JSON body. Returns false after writing
// the error response when the request is unusable.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  apperrors.ErrCodeInvalidInput,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps coded application errors onto HTTP statuses.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("internal error")
	}

	h.writeJSON(w, status, map[string]string{
		"code":   apperrors.CodeOf(err),
		"reason": apperrors.ReasonOf(err),
		"error":  err.Error(),
	})
}

func policyFromRequest(req *createPolicyRequest) *repository.ApprovalPolicy {
	levels := make([]repository.PolicyLevel, 0, len(req.Levels))
	for _, lvl := range req.Levels {
		levels = append(levels, repository.PolicyLevel{Level: lvl.Level, Role: lvl.Role})
	}
	return &repository.ApprovalPolicy{
		TenantID:  req.TenantID,
		Name:      req.Name,
		Module:    req.Module,
		IsActive:  req.IsActive,
		Priority:  req.Priority,
		MinAmount: req.MinAmount,
		MaxAmount: req.MaxAmount,
		Levels:    levels,
	}
}
