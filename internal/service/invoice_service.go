package service

import (
	"context"
	"strings"

	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/logger"
	"github.com/ledgerline/be-approvals/internal/repository"
)

// InvoiceService handles invoice lifecycle around the approval engine:
// creation, lookup, and the draft to pending_approval transition that starts
// an approval execution.
type InvoiceService struct {
	invoiceRepo *repository.InvoiceRepository
	approvals   *ApprovalService
	log         *logger.Logger
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(
	invoiceRepo *repository.InvoiceRepository,
	approvals *ApprovalService,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		approvals:   approvals,
		log:         log,
	}
}

// CreateInvoiceRequest represents a create invoice request. Amounts are cents.
type CreateInvoiceRequest struct {
	TenantID      string `json:"tenant_id"`
	VendorID      string `json:"vendor_id"`
	InvoiceNumber string `json:"invoice_number"`
	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
	CreatedBy     string `json:"created_by"`
}

// CreateInvoice creates a new draft invoice.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*repository.Invoice, error) {
	if req.InvoiceNumber == "" {
		return nil, errors.InvalidInput("invoice_number", "invoice number is required")
	}
	if req.TotalAmount <= 0 {
		return nil, errors.InvalidInput("total_amount", "total amount must be positive")
	}
	if len(req.Currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	invoice := &repository.Invoice{
		TenantID:      req.TenantID,
		VendorID:      req.VendorID,
		InvoiceNumber: req.InvoiceNumber,
		TotalAmount:   req.TotalAmount,
		Currency:      strings.ToUpper(req.Currency),
		Status:        "draft",
		CreatedBy:     optional(req.CreatedBy),
	}
	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("tenant_id", invoice.TenantID).
		Int64("total_amount", invoice.TotalAmount).
		Msg("Invoice created")

	return invoice, nil
}

// GetInvoice retrieves an invoice by ID.
func (s *InvoiceService) GetInvoice(ctx context.Context, id, tenantID string) (*repository.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, id, tenantID)
}

// ListInvoices returns a page of the tenant's invoices, newest first.
func (s *InvoiceService) ListInvoices(ctx context.Context, tenantID string, status *string, limit, offset int) ([]*repository.Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.invoiceRepo.List(ctx, tenantID, status, limit, offset)
}

// SubmitForApproval moves a draft invoice to pending_approval and starts an
// approval execution for it. A configuration error (no applicable workflow,
// malformed conditions) blocks submission and the invoice stays draft.
func (s *InvoiceService) SubmitForApproval(ctx context.Context, id, tenantID, submittedBy string) (*ExecutionSnapshot, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != "draft" {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"cannot submit invoice with status '%s' for approval", invoice.Status)
	}

	if err := s.invoiceRepo.UpdateStatus(ctx, id, tenantID, "pending_approval", optional(submittedBy)); err != nil {
		return nil, err
	}

	snap, err := s.approvals.CreateExecution(ctx, id, tenantID, submittedBy)
	if err != nil {
		// Leave the invoice editable; the tenant has to fix configuration
		// (or retry) before resubmitting.
		if revertErr := s.invoiceRepo.UpdateStatus(ctx, id, tenantID, "draft", optional(submittedBy)); revertErr != nil {
			s.log.Error().Err(revertErr).
				Str("invoice_id", id).
				Msg("Failed to revert invoice to draft after execution error")
		}
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", id).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("execution_id", snap.ID).
		Str("submitted_by", submittedBy).
		Msg("Invoice submitted for approval")

	return snap, nil
}
