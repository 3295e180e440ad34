package workflow

import (
	"time"

	"github.com/ledgerline/be-approvals/internal/errors"
)

// ApprovalStep is one position in a workflow definition. Steps are copied
// into each execution at creation time, so editing a definition never
// affects executions already in flight.
type ApprovalStep struct {
	StepOrder             int         `json:"step_order"`
	ApproverRole          string      `json:"approver_role,omitempty"`
	ApproverUserID        *string     `json:"approver_user_id,omitempty"`
	Required              bool        `json:"required"`
	AutoApproveConditions []Condition `json:"auto_approve_conditions,omitempty"`
}

// WorkflowDefinition is a tenant-scoped, reusable approval template.
// Amounts are int64 cents.
type WorkflowDefinition struct {
	ID                   string         `json:"id"`
	TenantID             string         `json:"tenant_id"`
	Name                 string         `json:"name"`
	Steps                []ApprovalStep `json:"steps"`
	AutoApproveThreshold *int64         `json:"auto_approve_threshold,omitempty"` // at or below: bypass, unless above the floor
	RequireApprovalAbove *int64         `json:"require_approval_above,omitempty"` // hard floor: above this the workflow always runs
	SelectionConditions  []Condition    `json:"selection_conditions,omitempty"`
	IsActive             bool           `json:"is_active"`
	IsDefault            bool           `json:"is_default"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Validate checks the structural invariants of a definition: at least one
// step, step orders unique and contiguous from 1, every step names a role or
// a user, all conditions well-formed, and thresholds consistent.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return errors.Configuration("workflow definition requires a name")
	}
	if len(d.Steps) == 0 {
		return errors.Configuration("workflow definition requires at least one step")
	}

	for i, step := range d.Steps {
		if step.StepOrder != i+1 {
			return errors.Newf(errors.ErrCodeConfiguration,
				"step orders must be contiguous from 1: position %d has step_order %d", i+1, step.StepOrder)
		}
		if step.ApproverRole == "" && step.ApproverUserID == nil {
			return errors.Newf(errors.ErrCodeConfiguration,
				"step %d requires an approver role or user", step.StepOrder)
		}
		if step.ApproverRole != "" {
			if _, err := ParseRole(step.ApproverRole); err != nil {
				return err
			}
		}
		for _, cond := range step.AutoApproveConditions {
			if err := cond.Validate(); err != nil {
				return err
			}
		}
	}

	for _, cond := range d.SelectionConditions {
		if err := cond.Validate(); err != nil {
			return err
		}
	}

	// The approval floor is authoritative: a threshold above it would imply
	// bypassing invoices the floor says must be reviewed.
	if d.AutoApproveThreshold != nil && d.RequireApprovalAbove != nil &&
		*d.AutoApproveThreshold > *d.RequireApprovalAbove {
		return errors.Configuration(
			"auto_approve_threshold must not exceed require_approval_above")
	}

	return nil
}

// Step returns the step with the given order, or nil.
func (d *WorkflowDefinition) Step(order int) *ApprovalStep {
	if order < 1 || order > len(d.Steps) {
		return nil
	}
	return &d.Steps[order-1]
}

// Invoice is the engine's view of an invoice: just the attributes selection
// conditions and thresholds operate on.
type Invoice struct {
	ID          string
	TenantID    string
	VendorID    string
	TotalAmount int64 // cents
	Currency    string
	Status      string
}

// Field resolves a condition field name against the invoice. Numeric fields
// come back as float64, everything else as string.
func (inv *Invoice) Field(name string) (any, error) {
	switch name {
	case "total_amount", "amount":
		return float64(inv.TotalAmount), nil
	case "currency":
		return inv.Currency, nil
	case "status":
		return inv.Status, nil
	case "vendor_id":
		return inv.VendorID, nil
	}
	return nil, errors.Newf(errors.ErrCodeConfiguration, "unknown invoice field %q", name)
}

// EvaluateAll reports whether every condition holds for the invoice.
func (inv *Invoice) EvaluateAll(conditions []Condition) (bool, error) {
	for _, cond := range conditions {
		value, err := inv.Field(cond.Field)
		if err != nil {
			return false, err
		}
		ok, err := cond.Evaluate(value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
