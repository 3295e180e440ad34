package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-approvals/internal/database"
	"github.com/ledgerline/be-approvals/internal/errors"
	"github.com/ledgerline/be-approvals/internal/workflow"
)

// DefinitionRepository handles CRUD for workflow_definitions. Steps and
// selection conditions are stored as JSONB alongside the scalar columns.
type DefinitionRepository struct {
	db *database.DB
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(db *database.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

const definitionColumns = `
	id, tenant_id, name, steps, selection_conditions,
	auto_approve_threshold, require_approval_above,
	is_active, is_default, created_at, updated_at
`

// Create inserts a new workflow definition.
func (r *DefinitionRepository) Create(ctx context.Context, def *workflow.WorkflowDefinition) error {
	stepsJSON, condsJSON, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions
		    (tenant_id, name, steps, selection_conditions,
		     auto_approve_threshold, require_approval_above,
		     is_active, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		def.TenantID,
		def.Name,
		stepsJSON,
		condsJSON,
		def.AutoApproveThreshold,
		def.RequireApprovalAbove,
		def.IsActive,
		def.IsDefault,
	).Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt)
}

// GetByID retrieves a definition by primary key.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*workflow.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	def, err := scanDefinition(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_definition", id)
	}
	return def, err
}

// List returns all definitions for a tenant, defaults first.
func (r *DefinitionRepository) List(ctx context.Context, tenantID string) ([]*workflow.WorkflowDefinition, error) {
	return r.list(ctx, tenantID, false)
}

// ListActive returns active definitions for a tenant, the set the selector
// evaluates.
func (r *DefinitionRepository) ListActive(ctx context.Context, tenantID string) ([]*workflow.WorkflowDefinition, error) {
	return r.list(ctx, tenantID, true)
}

func (r *DefinitionRepository) list(ctx context.Context, tenantID string, activeOnly bool) ([]*workflow.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE tenant_id = $1`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY is_default DESC, name ASC"

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow definitions")
	}
	defer rows.Close()

	var defs []*workflow.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow definition")
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Update persists changes to an existing definition.
func (r *DefinitionRepository) Update(ctx context.Context, def *workflow.WorkflowDefinition) error {
	stepsJSON, condsJSON, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_definitions
		SET name                   = $3,
		    steps                  = $4,
		    selection_conditions   = $5,
		    auto_approve_threshold = $6,
		    require_approval_above = $7,
		    is_active              = $8,
		    is_default             = $9,
		    updated_at             = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		def.ID,
		def.TenantID,
		def.Name,
		stepsJSON,
		condsJSON,
		def.AutoApproveThreshold,
		def.RequireApprovalAbove,
		def.IsActive,
		def.IsDefault,
	).Scan(&def.UpdatedAt)

	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_definition", def.ID)
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func marshalDefinition(def *workflow.WorkflowDefinition) (stepsJSON, condsJSON []byte, err error) {
	stepsJSON, err = json.Marshal(def.Steps)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow steps")
	}
	condsJSON, err = json.Marshal(def.SelectionConditions)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal selection conditions")
	}
	return stepsJSON, condsJSON, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*workflow.WorkflowDefinition, error) {
	def := &workflow.WorkflowDefinition{}
	var stepsJSON, condsJSON []byte

	err := row.Scan(
		&def.ID,
		&def.TenantID,
		&def.Name,
		&stepsJSON,
		&condsJSON,
		&def.AutoApproveThreshold,
		&def.RequireApprovalAbove,
		&def.IsActive,
		&def.IsDefault,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &def.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal workflow steps")
	}
	if condsJSON != nil {
		if err := json.Unmarshal(condsJSON, &def.SelectionConditions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal selection conditions")
		}
	}
	return def, nil
}
