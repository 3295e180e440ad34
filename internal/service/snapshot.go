package service

import (
	"time"

	"github.com/ledgerline/be-approvals/internal/workflow"
)

// ExecutionSnapshot is the serializable view of an execution returned to
// the API layer.
type ExecutionSnapshot struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	TenantID    string          `json:"tenant_id"`
	Status      string          `json:"status"`
	CurrentStep int             `json:"current_step"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Steps       []*StepSnapshot `json:"steps"`
}

// StepSnapshot is one step's outcome within an ExecutionSnapshot.
type StepSnapshot struct {
	Order        int        `json:"order"`
	Role         string     `json:"role,omitempty"`
	UserID       *string    `json:"user_id,omitempty"`
	Required     bool       `json:"required"`
	Status       string     `json:"status"`
	Actor        *string    `json:"actor,omitempty"`
	Comments     *string    `json:"comments,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	AutoApproved bool       `json:"auto_approved,omitempty"`
}

func snapshotOf(exec *workflow.WorkflowExecution) *ExecutionSnapshot {
	snap := &ExecutionSnapshot{
		ID:          exec.ID,
		InvoiceID:   exec.InvoiceID,
		TenantID:    exec.TenantID,
		Status:      string(exec.Status),
		CurrentStep: exec.CurrentStep,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Steps:       make([]*StepSnapshot, 0, len(exec.Steps)),
	}
	for _, step := range exec.Steps {
		snap.Steps = append(snap.Steps, &StepSnapshot{
			Order:        step.StepOrder,
			Role:         step.ApproverRole,
			UserID:       step.ApproverUserID,
			Required:     step.Required,
			Status:       string(step.Status),
			Actor:        step.ActorID,
			Comments:     step.Comments,
			DecidedAt:    step.DecidedAt,
			AutoApproved: step.AutoApproved,
		})
	}
	return snap
}
