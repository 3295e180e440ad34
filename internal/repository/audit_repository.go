package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-approvals/internal/database"
	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// AuditRepository reads the append-only approval_decisions log. Writes go
// through insertDecisions inside execution transactions, so a decision
// record can never land without its state change (or vice versa). The table
// carries a unique index on (execution_id, step_order) for step-level
// records: a replayed decision hits the index and surfaces as a conflict
// instead of a duplicate row.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const decisionColumns = `
	id, execution_id, invoice_id, tenant_id, step_order,
	actor_id, action, comments, resulting_status, auto_approved, performed_at
`

// ListByInvoiceID returns the full decision trail for an invoice, oldest first.
func (r *AuditRepository) ListByInvoiceID(ctx context.Context, invoiceID, tenantID string) ([]*workflow.ApprovalDecision, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM approval_decisions
		WHERE invoice_id = $1 AND tenant_id = $2
		ORDER BY performed_at ASC, step_order ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval decisions")
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListByExecutionID returns all decision records for one execution.
func (r *AuditRepository) ListByExecutionID(ctx context.Context, executionID string) ([]*workflow.ApprovalDecision, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM approval_decisions
		WHERE execution_id = $1
		ORDER BY performed_at ASC, step_order ASC
	`

	rows, err := r.db.Query(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval decisions")
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// insertDecisions appends decision records within an execution write
// transaction. A duplicate (execution_id, step_order) insert means the same
// decision was already recorded; the whole transaction rolls back and the
// caller sees a conflict, never a partial write.
func insertDecisions(ctx context.Context, tx pgx.Tx, executionID string, decisions []*workflow.ApprovalDecision) error {
	query := `
		INSERT INTO approval_decisions
		    (execution_id, invoice_id, tenant_id, step_order,
		     actor_id, action, comments, resulting_status, auto_approved, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::execution_status, $9, $10)
		RETURNING id
	`

	for _, d := range decisions {
		d.ExecutionID = executionID
		err := tx.QueryRow(ctx, query,
			d.ExecutionID,
			d.InvoiceID,
			d.TenantID,
			d.StepOrder,
			d.ActorID,
			d.Action,
			d.Comments,
			d.ResultingStatus,
			d.AutoApproved,
			d.PerformedAt,
		).Scan(&d.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Conflict("decision already recorded for this step")
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to append approval decision")
		}
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanDecisions(rows pgx.Rows) ([]*workflow.ApprovalDecision, error) {
	var decisions []*workflow.ApprovalDecision
	for rows.Next() {
		d := &workflow.ApprovalDecision{}
		err := rows.Scan(
			&d.ID,
			&d.ExecutionID,
			&d.InvoiceID,
			&d.TenantID,
			&d.StepOrder,
			&d.ActorID,
			&d.Action,
			&d.Comments,
			&d.ResultingStatus,
			&d.AutoApproved,
			&d.PerformedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval decision")
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
