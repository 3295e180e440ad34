package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/be-approvals/internal/errors"
)

func selectorDefs() []*WorkflowDefinition {
	return []*WorkflowDefinition{
		{
			ID:       "def-high-value",
			TenantID: "tenant-1",
			Name:     "high value",
			IsActive: true,
			Steps:    []ApprovalStep{{StepOrder: 1, ApproverRole: "admin", Required: true}},
			SelectionConditions: []Condition{
				{Field: "total_amount", Op: OpGreaterThan, Value: "100000"},
			},
		},
		{
			ID:        "def-default",
			TenantID:  "tenant-1",
			Name:      "default",
			IsActive:  true,
			IsDefault: true,
			Steps:     []ApprovalStep{{StepOrder: 1, ApproverRole: "manager", Required: true}},
			SelectionConditions: []Condition{
				{Field: "total_amount", Op: OpLessThan, Value: "100001"},
			},
		},
	}
}

func TestSelectDefinition(t *testing.T) {
	defs := selectorDefs()

	t.Run("single match", func(t *testing.T) {
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 250000}, defs)
		require.NoError(t, err)
		assert.Equal(t, "def-high-value", def.ID)
	})

	t.Run("default wins among multiple matches", func(t *testing.T) {
		overlapping := selectorDefs()
		overlapping[0].SelectionConditions = nil // now matches everything
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 500}, overlapping)
		require.NoError(t, err)
		assert.Equal(t, "def-default", def.ID)
	})

	t.Run("first match when none of several is default", func(t *testing.T) {
		overlapping := selectorDefs()
		overlapping[0].SelectionConditions = nil
		overlapping[1].IsDefault = false
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 500}, overlapping)
		require.NoError(t, err)
		assert.Equal(t, "def-high-value", def.ID)
	})

	t.Run("default as fallback when nothing matches", func(t *testing.T) {
		narrow := selectorDefs()
		narrow[1].SelectionConditions = []Condition{{Field: "currency", Op: OpEquals, Value: "EUR"}}
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 500, Currency: "USD"}, narrow)
		require.NoError(t, err)
		assert.Equal(t, "def-default", def.ID)
	})

	t.Run("inactive definitions are ignored", func(t *testing.T) {
		inactive := selectorDefs()
		inactive[0].IsActive = false
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 250000}, inactive)
		require.NoError(t, err)
		assert.Equal(t, "def-default", def.ID)
	})

	t.Run("other tenants are ignored", func(t *testing.T) {
		foreign := selectorDefs()
		foreign[0].TenantID = "tenant-2"
		def, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 250000}, foreign)
		require.NoError(t, err)
		assert.Equal(t, "def-default", def.ID)
	})

	t.Run("no applicable workflow", func(t *testing.T) {
		_, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 500}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
	})

	t.Run("broken selection condition surfaces", func(t *testing.T) {
		broken := selectorDefs()
		broken[0].SelectionConditions = []Condition{{Field: "total_amount", Op: OpGreaterThan, Value: "lots"}}
		_, err := SelectDefinition(&Invoice{TenantID: "tenant-1", TotalAmount: 250000}, broken)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
	})
}
