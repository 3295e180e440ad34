package workflow

import (
	"time"

	"github.com/ledgerline/be-approvals/internal/errors"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
// pending is the only non-terminal state.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionApproved  ExecutionStatus = "approved"
	ExecutionRejected  ExecutionStatus = "rejected"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionApproved || s == ExecutionRejected || s == ExecutionCancelled
}

// StepStatus is the per-step outcome. A step transitions exactly once from
// pending to one of the terminal statuses.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// DecisionAction is what an actor asks the engine to do with a step.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

// StepExecution is the outcome record for one step within an execution.
// The role/required/conditions fields are snapshotted from the definition
// when the execution is created.
type StepExecution struct {
	StepOrder             int
	ApproverRole          string
	ApproverUserID        *string
	Required              bool
	AutoApproveConditions []Condition
	Status                StepStatus
	ActorID               *string
	DecidedAt             *time.Time
	Comments              *string
	AutoApproved          bool
}

// WorkflowExecution is one run of a definition bound to one invoice.
// Revision backs the optimistic compare-and-swap at the storage layer: every
// save is conditioned on the revision read, and a lost race surfaces as a
// conflict rather than a silent overwrite.
type WorkflowExecution struct {
	ID           string
	InvoiceID    string
	TenantID     string
	DefinitionID string
	Status       ExecutionStatus
	CurrentStep  int
	StartedAt    time.Time
	CompletedAt  *time.Time
	Revision     int64
	Steps        []*StepExecution
}

// ApprovalDecision is one immutable audit record. Step order zero marks an
// execution-level event (auto-approval bypass, cancellation).
type ApprovalDecision struct {
	ID              string          `json:"id"`
	ExecutionID     string          `json:"execution_id"`
	InvoiceID       string          `json:"invoice_id"`
	TenantID        string          `json:"tenant_id"`
	StepOrder       int             `json:"step_order"`
	ActorID         string          `json:"actor_id"`
	Action          string          `json:"action"`
	Comments        *string         `json:"comments,omitempty"`
	ResultingStatus ExecutionStatus `json:"resulting_status"`
	AutoApproved    bool            `json:"auto_approved"`
	PerformedAt     time.Time       `json:"performed_at"`
}

// NewExecution creates a pending execution at step 1 with every step of the
// definition snapshotted as a pending StepExecution. The auto-approve
// cascade has not run yet; callers follow up with Advance.
func NewExecution(invoice *Invoice, def *WorkflowDefinition, now time.Time) *WorkflowExecution {
	exec := &WorkflowExecution{
		InvoiceID:    invoice.ID,
		TenantID:     invoice.TenantID,
		DefinitionID: def.ID,
		Status:       ExecutionPending,
		CurrentStep:  1,
		StartedAt:    now,
		Steps:        make([]*StepExecution, 0, len(def.Steps)),
	}
	for _, step := range def.Steps {
		exec.Steps = append(exec.Steps, &StepExecution{
			StepOrder:             step.StepOrder,
			ApproverRole:          step.ApproverRole,
			ApproverUserID:        step.ApproverUserID,
			Required:              step.Required,
			AutoApproveConditions: step.AutoApproveConditions,
			Status:                StepPending,
		})
	}
	return exec
}

// NewBypassedExecution creates an execution that is already approved with
// zero steps, for invoices the auto-approval policy waves through.
func NewBypassedExecution(invoice *Invoice, def *WorkflowDefinition, now time.Time) *WorkflowExecution {
	completed := now
	return &WorkflowExecution{
		InvoiceID:    invoice.ID,
		TenantID:     invoice.TenantID,
		DefinitionID: def.ID,
		Status:       ExecutionApproved,
		CurrentStep:  0,
		StartedAt:    now,
		CompletedAt:  &completed,
	}
}

// Step returns the step execution with the given order, or nil.
func (e *WorkflowExecution) Step(order int) *StepExecution {
	if order < 1 || order > len(e.Steps) {
		return nil
	}
	return e.Steps[order-1]
}

// Advance runs the auto-approve cascade from the current step: steps whose
// conditions all hold are approved without a human; non-required steps with
// no eligible approver (eligible[order] == false) are skipped. The cascade
// stops at the first step that needs a human decision, or approves the
// execution when it runs past the last step. current_step never decreases.
func (e *WorkflowExecution) Advance(invoice *Invoice, eligible map[int]bool, now time.Time) error {
	for !e.Status.Terminal() {
		step := e.Step(e.CurrentStep)
		if step == nil {
			// Ran past the last step: everything resolved.
			e.Status = ExecutionApproved
			completed := now
			e.CompletedAt = &completed
			return nil
		}

		if len(step.AutoApproveConditions) > 0 {
			ok, err := invoice.EvaluateAll(step.AutoApproveConditions)
			if err != nil {
				return err
			}
			if ok {
				step.Status = StepApproved
				step.AutoApproved = true
				decided := now
				step.DecidedAt = &decided
				e.CurrentStep++
				continue
			}
		}

		if !step.Required {
			if hasApprover, known := eligible[step.StepOrder]; known && !hasApprover {
				step.Status = StepSkipped
				decided := now
				step.DecidedAt = &decided
				e.CurrentStep++
				continue
			}
		}

		// Needs a human decision.
		return nil
	}
	return nil
}

// ApplyDecision transitions the given step with an actor's decision. The
// caller has already authorized the actor and holds the execution at a known
// revision; persistence rejects the write if that revision moved.
func (e *WorkflowExecution) ApplyDecision(stepOrder int, actorID string, action DecisionAction, comments string, now time.Time) error {
	if action != ActionApprove && action != ActionReject {
		return errors.InvalidInput("action", "must be approve or reject")
	}
	if e.Status.Terminal() {
		return errors.Conflict("already decided")
	}
	if stepOrder != e.CurrentStep {
		return errors.Newf(errors.ErrCodeConflict,
			"step %d is not the current step (current: %d)", stepOrder, e.CurrentStep)
	}
	step := e.Step(stepOrder)
	if step == nil || step.Status != StepPending {
		return errors.Conflict("already decided")
	}
	if action == ActionReject && comments == "" {
		return errors.InvalidInput("comments", "rejection requires a comment")
	}

	decided := now
	step.ActorID = &actorID
	step.DecidedAt = &decided

	switch action {
	case ActionApprove:
		step.Status = StepApproved
		if comments != "" {
			step.Comments = &comments
		}
		e.CurrentStep++
		if e.Step(e.CurrentStep) == nil {
			e.Status = ExecutionApproved
			e.CompletedAt = &decided
		}
		return nil

	case ActionReject:
		step.Status = StepRejected
		step.Comments = &comments
		e.skipRemaining(now)
		e.Status = ExecutionRejected
		e.CompletedAt = &decided
	}
	return nil
}

// Cancel transitions any non-terminal execution to cancelled. Step-level
// authorization does not apply; the caller is a privileged administrator.
func (e *WorkflowExecution) Cancel(now time.Time) error {
	if e.Status.Terminal() {
		return errors.Conflict("already decided")
	}
	e.skipRemaining(now)
	e.Status = ExecutionCancelled
	completed := now
	e.CompletedAt = &completed
	return nil
}

// skipRemaining marks every still-pending step skipped without evaluation.
func (e *WorkflowExecution) skipRemaining(now time.Time) {
	for _, step := range e.Steps {
		if step.Status == StepPending {
			step.Status = StepSkipped
			decided := now
			step.DecidedAt = &decided
		}
	}
}
