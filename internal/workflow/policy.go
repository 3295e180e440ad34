package workflow

// PolicyOutcome is the auto-approval policy's verdict for an invoice.
type PolicyOutcome int

const (
	// RequireSteps routes the invoice through the definition's steps.
	RequireSteps PolicyOutcome = iota
	// Bypass approves the invoice without creating any steps.
	Bypass
)

// DecideAutoApproval applies the definition's thresholds to an invoice.
// require_approval_above is a hard floor: amounts above it always run the
// full workflow, whatever the auto-approve threshold says. At or below the
// auto-approve threshold the invoice bypasses human review entirely.
// Definitions with threshold > floor are rejected at validation time, so
// the two knobs never disagree here.
func DecideAutoApproval(invoice *Invoice, def *WorkflowDefinition) PolicyOutcome {
	if def.RequireApprovalAbove != nil && invoice.TotalAmount > *def.RequireApprovalAbove {
		return RequireSteps
	}
	if def.AutoApproveThreshold != nil && invoice.TotalAmount <= *def.AutoApproveThreshold {
		return Bypass
	}
	return RequireSteps
}
