package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-approvals/internal/database"
	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// Invoice is the stored invoice record. The engine only ever sees the
// workflow.Invoice view derived from it.
type Invoice struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	VendorID      string     `json:"vendor_id"`
	InvoiceNumber string     `json:"invoice_number"`
	TotalAmount   int64      `json:"total_amount"` // cents
	Currency      string     `json:"currency"`
	Status        string     `json:"status"` // draft | pending_approval | approved | rejected
	ApprovedBy    *string    `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CreatedBy     *string    `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedBy     *string    `json:"updated_by,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Workflow returns the engine's view of the invoice.
func (inv *Invoice) Workflow() *workflow.Invoice {
	return &workflow.Invoice{
		ID:          inv.ID,
		TenantID:    inv.TenantID,
		VendorID:    inv.VendorID,
		TotalAmount: inv.TotalAmount,
		Currency:    inv.Currency,
		Status:      inv.Status,
	}
}

// InvoiceRepository persists invoices and implements the engine's invoice
// store contract.
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `
	id, tenant_id, vendor_id, invoice_number, total_amount, currency,
	status, approved_by, approved_at, created_by, created_at, updated_by, updated_at
`

// Create inserts a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO invoices
		    (tenant_id, vendor_id, invoice_number, total_amount, currency, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		inv.TenantID,
		inv.VendorID,
		inv.InvoiceNumber,
		inv.TotalAmount,
		inv.Currency,
		inv.Status,
		inv.CreatedBy,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("invoice number already exists for this vendor")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice")
	}
	return nil
}

// GetByID retrieves an invoice by primary key.
func (r *InvoiceRepository) GetByID(ctx context.Context, id, tenantID string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND tenant_id = $2`

	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", id)
	}
	return inv, err
}

// Get returns the engine's view of an invoice.
func (r *InvoiceRepository) Get(ctx context.Context, invoiceID, tenantID string) (*workflow.Invoice, error) {
	inv, err := r.GetByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	return inv.Workflow(), nil
}

// List returns invoices for a tenant, newest first, optionally filtered by status.
func (r *InvoiceRepository) List(ctx context.Context, tenantID string, status *string, limit, offset int) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoices")
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice")
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateStatus transitions the invoice status.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id, tenantID, status string, actorID *string) error {
	query := `
		UPDATE invoices
		SET status     = $3,
		    updated_by = $4,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, tenantID, status, actorID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update invoice status")
	}
	return nil
}

// SetApprovalStatus mirrors a resolved execution onto the invoice, stamping
// the approver when the outcome is approval.
func (r *InvoiceRepository) SetApprovalStatus(ctx context.Context, invoiceID, tenantID, status string, actorID *string) error {
	query := `
		UPDATE invoices
		SET status      = $3,
		    approved_by = CASE WHEN $3 = 'approved' THEN $4 ELSE approved_by END,
		    approved_at = CASE WHEN $3 = 'approved' THEN NOW() ELSE approved_at END,
		    updated_at  = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, invoiceID, tenantID, status, actorID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", invoiceID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set invoice approval status")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanInvoice(row rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	err := row.Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.VendorID,
		&inv.InvoiceNumber,
		&inv.TotalAmount,
		&inv.Currency,
		&inv.Status,
		&inv.ApprovedBy,
		&inv.ApprovedAt,
		&inv.CreatedBy,
		&inv.CreatedAt,
		&inv.UpdatedBy,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}
