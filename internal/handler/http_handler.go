package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/logger"
	"github.com/ledgerline/be-approvals/internal/service"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// HTTPHandler handles HTTP requests for invoices, workflow definitions and
// approval executions.
type HTTPHandler struct {
	invoices    *service.InvoiceService
	approvals   *service.ApprovalService
	definitions *service.DefinitionService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	invoices *service.InvoiceService,
	approvals *service.ApprovalService,
	definitions *service.DefinitionService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		invoices:    invoices,
		approvals:   approvals,
		definitions: definitions,
		log:         log,
	}
}

// ── Invoices ──────────────────────────────────────────────────────────────────

// CreateInvoice handles POST /api/v1/invoices.
func (h *HTTPHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	invoice, err := h.invoices.CreateInvoice(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, invoice)
}

// ListInvoices handles GET /api/v1/invoices?tenant_id=&status=&limit=&offset=.
func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		h.writeError(w, errors.InvalidInput("tenant_id", "tenant_id is required"))
		return
	}
	var status *string
	if s := q.Get("status"); s != "" {
		status = &s
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	invoices, err := h.invoices.ListInvoices(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices, "total": len(invoices)})
}

// GetInvoice handles GET /api/v1/invoices/get?id=&tenant_id=.
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	tenantID := r.URL.Query().Get("tenant_id")
	if id == "" || tenantID == "" {
		h.writeError(w, errors.InvalidInput("id", "id and tenant_id are required"))
		return
	}

	invoice, err := h.invoices.GetInvoice(r.Context(), id, tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// SubmitForApproval handles POST /api/v1/invoices/submit.
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		TenantID    string `json:"tenant_id"`
		SubmittedBy string `json:"submitted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	snap, err := h.invoices.SubmitForApproval(r.Context(), req.ID, req.TenantID, req.SubmittedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ── Executions ────────────────────────────────────────────────────────────────

// RecordDecision handles POST /api/v1/executions/decision.
func (h *HTTPHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExecutionID string `json:"execution_id"`
		StepOrder   int    `json:"step_order"`
		ActorID     string `json:"actor_id"`
		Action      string `json:"action"`
		Comments    string `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.ActorID == "" {
		h.writeError(w, errors.InvalidInput("actor_id", "actor_id is required"))
		return
	}

	snap, err := h.approvals.RecordDecision(r.Context(),
		req.ExecutionID, req.StepOrder, req.ActorID,
		workflow.DecisionAction(req.Action), req.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// CancelExecution handles POST /api/v1/executions/cancel.
func (h *HTTPHandler) CancelExecution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExecutionID string `json:"execution_id"`
		CancelledBy string `json:"cancelled_by"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	snap, err := h.approvals.Cancel(r.Context(), req.ExecutionID, req.CancelledBy, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetExecution handles GET /api/v1/executions/get?id=.
func (h *HTTPHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}

	snap, err := h.approvals.GetExecution(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetActiveExecution handles GET /api/v1/executions/active?invoice_id=&tenant_id=.
func (h *HTTPHandler) GetActiveExecution(w http.ResponseWriter, r *http.Request) {
	invoiceID := r.URL.Query().Get("invoice_id")
	tenantID := r.URL.Query().Get("tenant_id")
	if invoiceID == "" || tenantID == "" {
		h.writeError(w, errors.InvalidInput("invoice_id", "invoice_id and tenant_id are required"))
		return
	}

	snap, err := h.approvals.GetActiveExecution(r.Context(), invoiceID, tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ListPending handles GET /api/v1/executions/pending?tenant_id=&actor_id=.
// Backs the approval-inbox UI.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	actorID := r.URL.Query().Get("actor_id")
	if tenantID == "" || actorID == "" {
		h.writeError(w, errors.InvalidInput("actor_id", "tenant_id and actor_id are required"))
		return
	}

	snaps, err := h.approvals.ListPending(r.Context(), tenantID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"executions": snaps, "total": len(snaps)})
}

// GetHistory handles GET /api/v1/executions/history?invoice_id=&tenant_id=.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	invoiceID := r.URL.Query().Get("invoice_id")
	tenantID := r.URL.Query().Get("tenant_id")
	if invoiceID == "" || tenantID == "" {
		h.writeError(w, errors.InvalidInput("invoice_id", "invoice_id and tenant_id are required"))
		return
	}

	decisions, err := h.approvals.GetHistory(r.Context(), invoiceID, tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions, "total": len(decisions)})
}

// ── Workflow definitions ──────────────────────────────────────────────────────

// CreateDefinition handles POST /api/v1/workflows.
func (h *HTTPHandler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.definitions.Create(r.Context(), def); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, def)
}

// UpdateDefinition handles POST /api/v1/workflows/update.
func (h *HTTPHandler) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if def.ID == "" {
		h.writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}
	if err := h.definitions.Update(r.Context(), def); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// GetDefinition handles GET /api/v1/workflows/get?id=.
func (h *HTTPHandler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}

	def, err := h.definitions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// ListDefinitions handles GET /api/v1/workflows?tenant_id=&active=.
func (h *HTTPHandler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		h.writeError(w, errors.InvalidInput("tenant_id", "tenant_id is required"))
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	defs, err := h.definitions.List(r.Context(), tenantID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workflows": defs, "total": len(defs)})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type definitionRequest struct {
	ID                   string                  `json:"id,omitempty"`
	TenantID             string                  `json:"tenant_id"`
	Name                 string                  `json:"name"`
	Steps                []workflow.ApprovalStep `json:"steps"`
	SelectionConditions  []workflow.Condition    `json:"selection_conditions,omitempty"`
	AutoApproveThreshold *int64                  `json:"auto_approve_threshold,omitempty"`
	RequireApprovalAbove *int64                  `json:"require_approval_above,omitempty"`
	IsActive             bool                    `json:"is_active"`
	IsDefault            bool                    `json:"is_default"`
}

func decodeDefinition(r *http.Request) (*workflow.WorkflowDefinition, error) {
	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.InvalidInput("body", "malformed JSON")
	}
	return &workflow.WorkflowDefinition{
		ID:                   req.ID,
		TenantID:             req.TenantID,
		Name:                 req.Name,
		Steps:                req.Steps,
		SelectionConditions:  req.SelectionConditions,
		AutoApproveThreshold: req.AutoApproveThreshold,
		RequireApprovalAbove: req.RequireApprovalAbove,
		IsActive:             req.IsActive,
		IsDefault:            req.IsDefault,
	}, nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}
