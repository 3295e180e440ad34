package service

import (
	"context"

	"github.com/ledgerline/be-approvals/internal/logger"
	"github.com/ledgerline/be-approvals/internal/repository"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// DefinitionService manages tenant workflow definitions. Every write is
// validated up front so malformed conditions or inconsistent thresholds are
// rejected at configuration time, never during evaluation.
type DefinitionService struct {
	defRepo *repository.DefinitionRepository
	log     *logger.Logger
}

// NewDefinitionService creates a new DefinitionService.
func NewDefinitionService(defRepo *repository.DefinitionRepository, log *logger.Logger) *DefinitionService {
	return &DefinitionService{defRepo: defRepo, log: log}
}

// Create validates and persists a new workflow definition.
func (s *DefinitionService) Create(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.defRepo.Create(ctx, def); err != nil {
		return err
	}

	s.log.Info().
		Str("definition_id", def.ID).
		Str("tenant_id", def.TenantID).
		Str("name", def.Name).
		Int("steps", len(def.Steps)).
		Msg("Workflow definition created")
	return nil
}

// Update validates and persists changes to a definition. Executions already
// in flight keep the step snapshot taken at creation; the edit only affects
// future executions.
func (s *DefinitionService) Update(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.defRepo.Update(ctx, def); err != nil {
		return err
	}

	s.log.Info().
		Str("definition_id", def.ID).
		Str("tenant_id", def.TenantID).
		Msg("Workflow definition updated")
	return nil
}

// Get retrieves a definition by ID.
func (s *DefinitionService) Get(ctx context.Context, id string) (*workflow.WorkflowDefinition, error) {
	return s.defRepo.GetByID(ctx, id)
}

// List returns all definitions for a tenant.
func (s *DefinitionService) List(ctx context.Context, tenantID string, activeOnly bool) ([]*workflow.WorkflowDefinition, error) {
	if activeOnly {
		return s.defRepo.ListActive(ctx, tenantID)
	}
	return s.defRepo.List(ctx, tenantID)
}
