package service

import (
	"context"
	"time"

	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/logger"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// actorSystem marks decisions made by the engine itself (auto-approvals,
// eligibility skips).
const actorSystem = "system"

// ExecutionRepository is the persistence contract for workflow executions.
// Writes carry the decision records that must land atomically with the
// state change.
type ExecutionRepository interface {
	// Create persists a new execution with its steps and decision records in
	// one transaction. Returns a conflict error when an active execution
	// already exists for the invoice.
	Create(ctx context.Context, exec *workflow.WorkflowExecution, decisions []*workflow.ApprovalDecision) error
	// GetByID loads an execution with its steps and current revision.
	GetByID(ctx context.Context, id string) (*workflow.WorkflowExecution, error)
	// Save persists a mutated execution conditioned on expectedRevision
	// being unchanged since read. A lost compare-and-swap returns a conflict
	// error and writes nothing.
	Save(ctx context.Context, exec *workflow.WorkflowExecution, expectedRevision int64, decisions []*workflow.ApprovalDecision) error
	// GetActiveByInvoiceID returns the invoice's active execution, or nil
	// when none exists.
	GetActiveByInvoiceID(ctx context.Context, invoiceID, tenantID string) (*workflow.WorkflowExecution, error)
	// ListPendingForActor returns non-terminal executions whose current step
	// the actor can decide: pinned to the actor, or requiring one of roles.
	ListPendingForActor(ctx context.Context, tenantID, actorID string, roles []workflow.Role) ([]*workflow.WorkflowExecution, error)
}

// DefinitionRepository loads tenant workflow configuration.
type DefinitionRepository interface {
	ListActive(ctx context.Context, tenantID string) ([]*workflow.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*workflow.WorkflowDefinition, error)
}

// AuditRepository reads the append-only decision log. Appends ride inside
// execution writes; see ExecutionRepository.
type AuditRepository interface {
	ListByInvoiceID(ctx context.Context, invoiceID, tenantID string) ([]*workflow.ApprovalDecision, error)
	ListByExecutionID(ctx context.Context, executionID string) ([]*workflow.ApprovalDecision, error)
}

// InvoiceStore supplies invoice attributes and accepts approval status
// pushback when an execution resolves.
type InvoiceStore interface {
	Get(ctx context.Context, invoiceID, tenantID string) (*workflow.Invoice, error)
	SetApprovalStatus(ctx context.Context, invoiceID, tenantID, status string, actorID *string) error
}

// IdentityClientInterface resolves actors and role membership from the
// platform identity service.
type IdentityClientInterface interface {
	// GetActorRoles returns the roles the actor holds for a tenant. Unknown
	// actors yield an empty slice, not an error.
	GetActorRoles(ctx context.Context, tenantID, actorID string) ([]workflow.Role, error)
	// HasUsersWithRole reports whether any user holds the role (or a higher
	// one) for the tenant. Drives auto-skip of non-required steps.
	HasUsersWithRole(ctx context.Context, tenantID string, role workflow.Role) (bool, error)
}

// Notifier publishes out-of-band workflow events. Implementations must be
// fire-and-forget: a notification failure never rolls back a committed
// transition.
type Notifier interface {
	OnStepPending(ctx context.Context, exec *workflow.WorkflowExecution, stepOrder int)
	OnResolved(ctx context.Context, exec *workflow.WorkflowExecution)
}

// ApprovalService is the workflow execution engine: it creates executions,
// gates and applies decisions, and resolves terminal state. All state
// transitions are pure computations over loaded state; durability and the
// concurrency guarantees live behind the repository contract.
type ApprovalService struct {
	execRepo  ExecutionRepository
	defRepo   DefinitionRepository
	auditRepo AuditRepository
	invoices  InvoiceStore
	identity  IdentityClientInterface
	notifier  Notifier
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	execRepo ExecutionRepository,
	defRepo DefinitionRepository,
	auditRepo AuditRepository,
	invoices InvoiceStore,
	identity IdentityClientInterface,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		execRepo:  execRepo,
		defRepo:   defRepo,
		auditRepo: auditRepo,
		invoices:  invoices,
		identity:  identity,
		notifier:  notifier,
		log:       log,
	}
}

// ── Execution creation ────────────────────────────────────────────────────────

// CreateExecution starts an approval run for an invoice. The applicable
// definition is selected from the tenant's configuration; the auto-approval
// policy may resolve the run immediately, otherwise the execution starts
// pending at the first step needing a human decision.
func (s *ApprovalService) CreateExecution(ctx context.Context, invoiceID, tenantID, requestedBy string) (*ExecutionSnapshot, error) {
	invoice, err := s.invoices.Get(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}

	// The storage uniqueness constraint only covers pending inserts, so the
	// bypass path needs this check too. The constraint stays as the race-safe
	// backstop for concurrent pending creations.
	active, err := s.execRepo.GetActiveByInvoiceID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errors.Conflict("an active approval execution already exists for this invoice")
	}

	definitions, err := s.defRepo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	def, err := workflow.SelectDefinition(invoice, definitions)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if workflow.DecideAutoApproval(invoice, def) == workflow.Bypass {
		exec := workflow.NewBypassedExecution(invoice, def, now)
		decision := &workflow.ApprovalDecision{
			InvoiceID:       invoiceID,
			TenantID:        tenantID,
			ActorID:         actorSystem,
			Action:          "auto_approved",
			ResultingStatus: workflow.ExecutionApproved,
			AutoApproved:    true,
			PerformedAt:     now,
		}
		if err := s.execRepo.Create(ctx, exec, []*workflow.ApprovalDecision{decision}); err != nil {
			return nil, err
		}
		s.pushInvoiceStatus(ctx, exec, nil)
		s.notifier.OnResolved(ctx, exec)

		s.log.Info().
			Str("invoice_id", invoiceID).
			Str("execution_id", exec.ID).
			Msg("Invoice auto-approved below threshold")
		return snapshotOf(exec), nil
	}

	exec := workflow.NewExecution(invoice, def, now)
	eligible := s.resolveEligibility(ctx, exec)
	before := pendingOrders(exec)
	if err := exec.Advance(invoice, eligible, now); err != nil {
		return nil, err
	}
	decisions := s.cascadeDecisions(exec, before, now)

	if err := s.execRepo.Create(ctx, exec, decisions); err != nil {
		return nil, err
	}

	if exec.Status.Terminal() {
		s.pushInvoiceStatus(ctx, exec, nil)
		s.notifier.OnResolved(ctx, exec)
	} else {
		s.notifier.OnStepPending(ctx, exec, exec.CurrentStep)
	}

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("execution_id", exec.ID).
		Str("definition_id", def.ID).
		Int("current_step", exec.CurrentStep).
		Str("status", string(exec.Status)).
		Str("requested_by", requestedBy).
		Msg("Approval execution created")

	return snapshotOf(exec), nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// RecordDecision applies an actor's approve/reject decision to the current
// step of an execution. Exactly one of two concurrent decisions on the same
// step succeeds; the loser's conditional write fails with a conflict.
func (s *ApprovalService) RecordDecision(ctx context.Context, executionID string, stepOrder int, actorID string, action workflow.DecisionAction, comments string) (*ExecutionSnapshot, error) {
	exec, err := s.execRepo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	revision := exec.Revision

	if exec.Status.Terminal() {
		return nil, errors.Conflict("already decided")
	}
	if stepOrder != exec.CurrentStep {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"step %d is not the current step (current: %d)", stepOrder, exec.CurrentStep)
	}
	if action != workflow.ActionApprove && action != workflow.ActionReject {
		return nil, errors.InvalidInput("action", "must be approve or reject")
	}
	if action == workflow.ActionReject && comments == "" {
		return nil, errors.InvalidInput("comments", "rejection requires a comment")
	}

	step := exec.Step(stepOrder)
	authorized, err := s.isAuthorized(ctx, exec.TenantID, actorID, step)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, errors.Unauthorized("actor cannot decide this approval step")
	}

	invoice, err := s.invoices.Get(ctx, exec.InvoiceID, exec.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := exec.ApplyDecision(stepOrder, actorID, action, comments, now); err != nil {
		return nil, err
	}

	decisions := []*workflow.ApprovalDecision{{
		ExecutionID:     exec.ID,
		InvoiceID:       exec.InvoiceID,
		TenantID:        exec.TenantID,
		StepOrder:       stepOrder,
		ActorID:         actorID,
		Action:          string(action),
		Comments:        optional(comments),
		ResultingStatus: exec.Status,
		PerformedAt:     now,
	}}

	// A human approval may unlock auto-approved or skippable steps behind it.
	if action == workflow.ActionApprove && !exec.Status.Terminal() {
		eligible := s.resolveEligibility(ctx, exec)
		before := pendingOrders(exec)
		if err := exec.Advance(invoice, eligible, now); err != nil {
			return nil, err
		}
		decisions = append(decisions, s.cascadeDecisions(exec, before, now)...)
		for _, d := range decisions {
			d.ResultingStatus = exec.Status
		}
	}

	if err := s.execRepo.Save(ctx, exec, revision, decisions); err != nil {
		return nil, err
	}

	if exec.Status.Terminal() {
		s.pushInvoiceStatus(ctx, exec, &actorID)
		s.notifier.OnResolved(ctx, exec)
	} else {
		s.notifier.OnStepPending(ctx, exec, exec.CurrentStep)
	}

	s.log.Info().
		Str("execution_id", exec.ID).
		Str("invoice_id", exec.InvoiceID).
		Int("step", stepOrder).
		Str("action", string(action)).
		Str("actor_id", actorID).
		Str("status", string(exec.Status)).
		Msg("Approval decision recorded")

	return snapshotOf(exec), nil
}

// Cancel is an administrative override transitioning any non-terminal
// execution to cancelled. Step-level authorization is not checked; callers
// gate this behind a privileged permission.
func (s *ApprovalService) Cancel(ctx context.Context, executionID, cancelledBy, reason string) (*ExecutionSnapshot, error) {
	if reason == "" {
		return nil, errors.InvalidInput("reason", "cancellation reason is required")
	}

	exec, err := s.execRepo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	revision := exec.Revision

	now := time.Now().UTC()
	if err := exec.Cancel(now); err != nil {
		return nil, err
	}

	decision := &workflow.ApprovalDecision{
		ExecutionID:     exec.ID,
		InvoiceID:       exec.InvoiceID,
		TenantID:        exec.TenantID,
		ActorID:         cancelledBy,
		Action:          "cancelled",
		Comments:        &reason,
		ResultingStatus: workflow.ExecutionCancelled,
		PerformedAt:     now,
	}
	if err := s.execRepo.Save(ctx, exec, revision, []*workflow.ApprovalDecision{decision}); err != nil {
		return nil, err
	}

	s.pushInvoiceStatus(ctx, exec, &cancelledBy)
	s.notifier.OnResolved(ctx, exec)

	s.log.Info().
		Str("execution_id", exec.ID).
		Str("invoice_id", exec.InvoiceID).
		Str("cancelled_by", cancelledBy).
		Msg("Approval execution cancelled")

	return snapshotOf(exec), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetExecution returns a serializable snapshot of one execution.
func (s *ApprovalService) GetExecution(ctx context.Context, executionID string) (*ExecutionSnapshot, error) {
	exec, err := s.execRepo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(exec), nil
}

// GetActiveExecution returns a snapshot of the invoice's in-flight
// execution, if any.
func (s *ApprovalService) GetActiveExecution(ctx context.Context, invoiceID, tenantID string) (*ExecutionSnapshot, error) {
	exec, err := s.execRepo.GetActiveByInvoiceID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.Newf(errors.ErrCodeNotFound, "no active execution for invoice %s", invoiceID)
	}
	return snapshotOf(exec), nil
}

// ListPending returns every execution whose current step the actor can
// decide, for the approval-inbox UI.
func (s *ApprovalService) ListPending(ctx context.Context, tenantID, actorID string) ([]*ExecutionSnapshot, error) {
	held, err := s.identity.GetActorRoles(ctx, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	execs, err := s.execRepo.ListPendingForActor(ctx, tenantID, actorID, workflow.SatisfiableRoles(held))
	if err != nil {
		return nil, err
	}
	snapshots := make([]*ExecutionSnapshot, 0, len(execs))
	for _, exec := range execs {
		snapshots = append(snapshots, snapshotOf(exec))
	}
	return snapshots, nil
}

// GetHistory returns the full decision trail for an invoice, oldest first.
func (s *ApprovalService) GetHistory(ctx context.Context, invoiceID, tenantID string) ([]*workflow.ApprovalDecision, error) {
	return s.auditRepo.ListByInvoiceID(ctx, invoiceID, tenantID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// isAuthorized checks the actor against a step: exact match for user-pinned
// steps, role hierarchy otherwise.
func (s *ApprovalService) isAuthorized(ctx context.Context, tenantID, actorID string, step *workflow.StepExecution) (bool, error) {
	if step.ApproverUserID != nil {
		return *step.ApproverUserID == actorID, nil
	}
	required, err := workflow.ParseRole(step.ApproverRole)
	if err != nil {
		return false, err
	}
	held, err := s.identity.GetActorRoles(ctx, tenantID, actorID)
	if err != nil {
		return false, err
	}
	for _, r := range held {
		if r.Satisfies(required) {
			return true, nil
		}
	}
	return false, nil
}

// resolveEligibility pre-fetches, for each still-pending optional role step,
// whether anyone can approve it. Identity failures leave the step eligible
// so it is never skipped on a transient error.
func (s *ApprovalService) resolveEligibility(ctx context.Context, exec *workflow.WorkflowExecution) map[int]bool {
	eligible := make(map[int]bool)
	for _, step := range exec.Steps {
		if step.Status != workflow.StepPending || step.Required || step.ApproverRole == "" {
			continue
		}
		role, err := workflow.ParseRole(step.ApproverRole)
		if err != nil {
			continue
		}
		has, err := s.identity.HasUsersWithRole(ctx, exec.TenantID, role)
		if err != nil {
			s.log.Warn().Err(err).
				Str("role", step.ApproverRole).
				Int("step", step.StepOrder).
				Msg("Could not check role eligibility; step stays pending")
			continue
		}
		eligible[step.StepOrder] = has
	}
	return eligible
}

// cascadeDecisions builds audit records for steps the cascade resolved:
// anything pending before Advance that is now approved or skipped.
func (s *ApprovalService) cascadeDecisions(exec *workflow.WorkflowExecution, pendingBefore map[int]bool, now time.Time) []*workflow.ApprovalDecision {
	var decisions []*workflow.ApprovalDecision
	for _, step := range exec.Steps {
		if !pendingBefore[step.StepOrder] || step.Status == workflow.StepPending {
			continue
		}
		action := "auto_approved"
		if step.Status == workflow.StepSkipped {
			action = "skipped"
		}
		decisions = append(decisions, &workflow.ApprovalDecision{
			ExecutionID:     exec.ID,
			InvoiceID:       exec.InvoiceID,
			TenantID:        exec.TenantID,
			StepOrder:       step.StepOrder,
			ActorID:         actorSystem,
			Action:          action,
			ResultingStatus: exec.Status,
			AutoApproved:    step.AutoApproved,
			PerformedAt:     now,
		})
	}
	return decisions
}

// pushInvoiceStatus mirrors a terminal execution status onto the invoice.
// Cancelled runs return the invoice to draft so it can be resubmitted.
func (s *ApprovalService) pushInvoiceStatus(ctx context.Context, exec *workflow.WorkflowExecution, actorID *string) {
	status := ""
	switch exec.Status {
	case workflow.ExecutionApproved:
		status = "approved"
	case workflow.ExecutionRejected:
		status = "rejected"
	case workflow.ExecutionCancelled:
		status = "draft"
	default:
		return
	}
	if err := s.invoices.SetApprovalStatus(ctx, exec.InvoiceID, exec.TenantID, status, actorID); err != nil {
		s.log.Warn().Err(err).
			Str("invoice_id", exec.InvoiceID).
			Str("status", status).
			Msg("Failed to push approval status to invoice")
	}
}

func pendingOrders(exec *workflow.WorkflowExecution) map[int]bool {
	pending := make(map[int]bool)
	for _, step := range exec.Steps {
		if step.Status == workflow.StepPending {
			pending[step.StepOrder] = true
		}
	}
	return pending
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
