package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-approvals/internal/database"
	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// ExecutionRepository persists workflow executions with their steps and
// decision records. Two schema-level constraints carry the engine's
// correctness guarantees:
//
//   - a partial unique index on (invoice_id) WHERE status = 'pending'
//     enforces at most one active execution per invoice;
//   - every Save is conditioned on the revision read (compare-and-swap), so
//     of two concurrent decisions on the same execution exactly one commits
//     and the other gets a conflict.
type ExecutionRepository struct {
	db *database.DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *database.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts an execution, its step snapshot and initial decision
// records in one transaction.
func (r *ExecutionRepository) Create(ctx context.Context, exec *workflow.WorkflowExecution, decisions []*workflow.ApprovalDecision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO workflow_executions
			    (invoice_id, tenant_id, definition_id, status,
			     current_step, started_at, completed_at)
			VALUES ($1, $2, $3, $4::execution_status, $5, $6, $7)
			RETURNING id, revision
		`

		err := tx.QueryRow(ctx, query,
			exec.InvoiceID,
			exec.TenantID,
			exec.DefinitionID,
			exec.Status,
			exec.CurrentStep,
			exec.StartedAt,
			exec.CompletedAt,
		).Scan(&exec.ID, &exec.Revision)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Conflict("an active approval execution already exists for this invoice")
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow execution")
		}

		stepQuery := `
			INSERT INTO execution_steps
			    (execution_id, step_order, approver_role, approver_user_id,
			     required, auto_approve_conditions,
			     status, actor_id, decided_at, comments, auto_approved)
			VALUES ($1, $2, $3, $4, $5, $6, $7::step_status, $8, $9, $10, $11)
		`

		for _, step := range exec.Steps {
			condsJSON, err := json.Marshal(step.AutoApproveConditions)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal step conditions")
			}
			_, err = tx.Exec(ctx, stepQuery,
				exec.ID,
				step.StepOrder,
				nullableString(step.ApproverRole),
				step.ApproverUserID,
				step.Required,
				condsJSON,
				step.Status,
				step.ActorID,
				step.DecidedAt,
				step.Comments,
				step.AutoApproved,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create execution step")
			}
		}

		return insertDecisions(ctx, tx, exec.ID, decisions)
	})
}

// GetByID loads an execution with its steps and current revision.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	query := `
		SELECT id, invoice_id, tenant_id, definition_id, status,
		       current_step, started_at, completed_at, revision
		FROM workflow_executions
		WHERE id = $1
	`

	exec, err := scanExecution(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_execution", id)
	}
	if err != nil {
		return nil, err
	}

	exec.Steps, err = r.loadSteps(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// GetActiveByInvoiceID returns the active execution for an invoice, or nil
// when none exists.
func (r *ExecutionRepository) GetActiveByInvoiceID(ctx context.Context, invoiceID, tenantID string) (*workflow.WorkflowExecution, error) {
	query := `
		SELECT id, invoice_id, tenant_id, definition_id, status,
		       current_step, started_at, completed_at, revision
		FROM workflow_executions
		WHERE invoice_id = $1 AND tenant_id = $2 AND status = 'pending'
	`

	exec, err := scanExecution(r.db.QueryRow(ctx, query, invoiceID, tenantID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	exec.Steps, err = r.loadSteps(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Save persists a mutated execution guarded by the revision captured at
// read time. The execution row, step outcomes and decision records commit
// together or not at all; a revision mismatch writes nothing and returns a
// conflict for the caller to retry with fresh state.
func (r *ExecutionRepository) Save(ctx context.Context, exec *workflow.WorkflowExecution, expectedRevision int64, decisions []*workflow.ApprovalDecision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE workflow_executions
			SET status       = $2::execution_status,
			    current_step = $3,
			    completed_at = $4,
			    revision     = revision + 1,
			    updated_at   = NOW()
			WHERE id = $1 AND revision = $5
			RETURNING revision
		`

		err := tx.QueryRow(ctx, query,
			exec.ID,
			exec.Status,
			exec.CurrentStep,
			exec.CompletedAt,
			expectedRevision,
		).Scan(&exec.Revision)
		if err == pgx.ErrNoRows {
			return errors.Conflict("execution was modified concurrently")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to save workflow execution")
		}

		stepQuery := `
			UPDATE execution_steps
			SET status        = $3::step_status,
			    actor_id      = $4,
			    decided_at    = $5,
			    comments      = $6,
			    auto_approved = $7
			WHERE execution_id = $1 AND step_order = $2
		`

		for _, step := range exec.Steps {
			_, err := tx.Exec(ctx, stepQuery,
				exec.ID,
				step.StepOrder,
				step.Status,
				step.ActorID,
				step.DecidedAt,
				step.Comments,
				step.AutoApproved,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to save execution step")
			}
		}

		return insertDecisions(ctx, tx, exec.ID, decisions)
	})
}

// ListPendingForActor returns pending executions whose current step is
// decidable by the actor: pinned to them, or requiring a role from roles.
func (r *ExecutionRepository) ListPendingForActor(ctx context.Context, tenantID, actorID string, roles []workflow.Role) ([]*workflow.WorkflowExecution, error) {
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, string(role))
	}

	query := `
		SELECT e.id, e.invoice_id, e.tenant_id, e.definition_id, e.status,
		       e.current_step, e.started_at, e.completed_at, e.revision
		FROM workflow_executions e
		JOIN execution_steps s
		  ON s.execution_id = e.id AND s.step_order = e.current_step
		WHERE e.tenant_id = $1
		  AND e.status = 'pending'
		  AND s.status = 'pending'
		  AND (s.approver_user_id = $2
		       OR (s.approver_user_id IS NULL AND s.approver_role = ANY($3)))
		ORDER BY e.started_at ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, actorID, roleNames)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending executions")
	}
	defer rows.Close()

	var execs []*workflow.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow execution")
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, exec := range execs {
		exec.Steps, err = r.loadSteps(ctx, exec.ID)
		if err != nil {
			return nil, err
		}
	}
	return execs, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ExecutionRepository) loadSteps(ctx context.Context, executionID string) ([]*workflow.StepExecution, error) {
	query := `
		SELECT step_order, approver_role, approver_user_id, required,
		       auto_approve_conditions,
		       status, actor_id, decided_at, comments, auto_approved
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load execution steps")
	}
	defer rows.Close()

	var steps []*workflow.StepExecution
	for rows.Next() {
		step := &workflow.StepExecution{}
		var role *string
		var condsJSON []byte

		err := rows.Scan(
			&step.StepOrder,
			&role,
			&step.ApproverUserID,
			&step.Required,
			&condsJSON,
			&step.Status,
			&step.ActorID,
			&step.DecidedAt,
			&step.Comments,
			&step.AutoApproved,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan execution step")
		}
		if role != nil {
			step.ApproverRole = *role
		}
		if condsJSON != nil {
			if err := json.Unmarshal(condsJSON, &step.AutoApproveConditions); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal step conditions")
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanExecution(row rowScanner) (*workflow.WorkflowExecution, error) {
	exec := &workflow.WorkflowExecution{}
	err := row.Scan(
		&exec.ID,
		&exec.InvoiceID,
		&exec.TenantID,
		&exec.DefinitionID,
		&exec.Status,
		&exec.CurrentStep,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.Revision,
	)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
