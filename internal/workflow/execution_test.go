package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/be-approvals/internal/errors"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func twoStepExecution() *WorkflowExecution {
	inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000, Currency: "USD"}
	def := validDefinition()
	def.ID = "def-1"
	return NewExecution(inv, def, testNow)
}

func TestNewExecution(t *testing.T) {
	exec := twoStepExecution()

	assert.Equal(t, ExecutionPending, exec.Status)
	assert.Equal(t, 1, exec.CurrentStep)
	assert.Equal(t, testNow, exec.StartedAt)
	assert.Nil(t, exec.CompletedAt)
	require.Len(t, exec.Steps, 2)
	for i, step := range exec.Steps {
		assert.Equal(t, i+1, step.StepOrder)
		assert.Equal(t, StepPending, step.Status)
	}
	assert.Equal(t, "manager", exec.Steps[0].ApproverRole)
	assert.Equal(t, "admin", exec.Steps[1].ApproverRole)
}

func TestNewBypassedExecution(t *testing.T) {
	inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 500}
	def := validDefinition()
	def.ID = "def-1"

	exec := NewBypassedExecution(inv, def, testNow)

	assert.Equal(t, ExecutionApproved, exec.Status)
	assert.Empty(t, exec.Steps)
	assert.Equal(t, 0, exec.CurrentStep)
	require.NotNil(t, exec.CompletedAt)
	assert.Equal(t, testNow, *exec.CompletedAt)
}

func TestWorkflowExecution_Advance(t *testing.T) {
	t.Run("stops at first human step", func(t *testing.T) {
		exec := twoStepExecution()
		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000}

		require.NoError(t, exec.Advance(inv, nil, testNow))

		assert.Equal(t, ExecutionPending, exec.Status)
		assert.Equal(t, 1, exec.CurrentStep)
		assert.Equal(t, StepPending, exec.Steps[0].Status)
	})

	t.Run("auto-approves steps whose conditions hold", func(t *testing.T) {
		exec := twoStepExecution()
		exec.Steps[0].AutoApproveConditions = []Condition{
			{Field: "currency", Op: OpEquals, Value: "USD"},
		}
		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000, Currency: "USD"}

		require.NoError(t, exec.Advance(inv, nil, testNow))

		assert.Equal(t, ExecutionPending, exec.Status)
		assert.Equal(t, 2, exec.CurrentStep)
		assert.Equal(t, StepApproved, exec.Steps[0].Status)
		assert.True(t, exec.Steps[0].AutoApproved)
		assert.Nil(t, exec.Steps[0].ActorID)
		assert.Equal(t, StepPending, exec.Steps[1].Status)
	})

	t.Run("approves execution when every step auto-approves", func(t *testing.T) {
		exec := twoStepExecution()
		cond := []Condition{{Field: "currency", Op: OpEquals, Value: "USD"}}
		exec.Steps[0].AutoApproveConditions = cond
		exec.Steps[1].AutoApproveConditions = cond
		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", Currency: "USD"}

		require.NoError(t, exec.Advance(inv, nil, testNow))

		assert.Equal(t, ExecutionApproved, exec.Status)
		require.NotNil(t, exec.CompletedAt)
		for _, step := range exec.Steps {
			assert.Equal(t, StepApproved, step.Status)
			assert.True(t, step.AutoApproved)
		}
	})

	t.Run("skips optional step with no eligible approver", func(t *testing.T) {
		exec := twoStepExecution()
		exec.Steps[0].Required = false

		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000}
		require.NoError(t, exec.Advance(inv, map[int]bool{1: false}, testNow))

		assert.Equal(t, StepSkipped, exec.Steps[0].Status)
		assert.Equal(t, 2, exec.CurrentStep)
		assert.Equal(t, ExecutionPending, exec.Status)
	})

	t.Run("keeps optional step when eligibility unknown", func(t *testing.T) {
		exec := twoStepExecution()
		exec.Steps[0].Required = false

		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000}
		require.NoError(t, exec.Advance(inv, nil, testNow))

		assert.Equal(t, StepPending, exec.Steps[0].Status)
		assert.Equal(t, 1, exec.CurrentStep)
	})

	t.Run("never skips a required step", func(t *testing.T) {
		exec := twoStepExecution()

		inv := &Invoice{ID: "inv-1", TenantID: "tenant-1", TotalAmount: 250000}
		require.NoError(t, exec.Advance(inv, map[int]bool{1: false, 2: false}, testNow))

		assert.Equal(t, StepPending, exec.Steps[0].Status)
		assert.Equal(t, 1, exec.CurrentStep)
	})
}

func TestWorkflowExecution_ApplyDecision(t *testing.T) {
	t.Run("approve advances to next step", func(t *testing.T) {
		exec := twoStepExecution()

		err := exec.ApplyDecision(1, "mgr-1", ActionApprove, "", testNow)
		require.NoError(t, err)

		assert.Equal(t, ExecutionPending, exec.Status)
		assert.Equal(t, 2, exec.CurrentStep)
		assert.Equal(t, StepApproved, exec.Steps[0].Status)
		require.NotNil(t, exec.Steps[0].ActorID)
		assert.Equal(t, "mgr-1", *exec.Steps[0].ActorID)
		assert.False(t, exec.Steps[0].AutoApproved)
	})

	t.Run("approving the last step approves the execution", func(t *testing.T) {
		exec := twoStepExecution()
		require.NoError(t, exec.ApplyDecision(1, "mgr-1", ActionApprove, "", testNow))
		require.NoError(t, exec.ApplyDecision(2, "adm-1", ActionApprove, "looks good", testNow))

		assert.Equal(t, ExecutionApproved, exec.Status)
		require.NotNil(t, exec.CompletedAt)
		require.NotNil(t, exec.Steps[1].Comments)
		assert.Equal(t, "looks good", *exec.Steps[1].Comments)
	})

	t.Run("reject resolves the execution and skips later steps", func(t *testing.T) {
		exec := twoStepExecution()

		err := exec.ApplyDecision(1, "mgr-1", ActionReject, "duplicate invoice", testNow)
		require.NoError(t, err)

		assert.Equal(t, ExecutionRejected, exec.Status)
		require.NotNil(t, exec.CompletedAt)
		assert.Equal(t, StepRejected, exec.Steps[0].Status)
		assert.Equal(t, StepSkipped, exec.Steps[1].Status)
	})

	t.Run("reject requires a comment", func(t *testing.T) {
		exec := twoStepExecution()

		err := exec.ApplyDecision(1, "mgr-1", ActionReject, "", testNow)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

		// Nothing moved.
		assert.Equal(t, StepPending, exec.Steps[0].Status)
		assert.Nil(t, exec.Steps[0].ActorID)
		assert.Equal(t, 1, exec.CurrentStep)
		assert.Equal(t, ExecutionPending, exec.Status)
	})

	t.Run("unknown action", func(t *testing.T) {
		exec := twoStepExecution()

		err := exec.ApplyDecision(1, "mgr-1", DecisionAction("defer"), "", testNow)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	})

	t.Run("stale step order conflicts", func(t *testing.T) {
		exec := twoStepExecution()
		require.NoError(t, exec.ApplyDecision(1, "mgr-1", ActionApprove, "", testNow))

		err := exec.ApplyDecision(1, "mgr-2", ActionApprove, "", testNow)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})

	t.Run("terminal execution conflicts", func(t *testing.T) {
		exec := twoStepExecution()
		require.NoError(t, exec.ApplyDecision(1, "mgr-1", ActionReject, "no", testNow))

		err := exec.ApplyDecision(2, "adm-1", ActionApprove, "", testNow)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})
}

func TestWorkflowExecution_Cancel(t *testing.T) {
	t.Run("cancels a pending execution", func(t *testing.T) {
		exec := twoStepExecution()

		require.NoError(t, exec.Cancel(testNow))

		assert.Equal(t, ExecutionCancelled, exec.Status)
		require.NotNil(t, exec.CompletedAt)
		assert.Equal(t, StepSkipped, exec.Steps[0].Status)
		assert.Equal(t, StepSkipped, exec.Steps[1].Status)
	})

	t.Run("terminal execution conflicts", func(t *testing.T) {
		exec := twoStepExecution()
		require.NoError(t, exec.Cancel(testNow))

		err := exec.Cancel(testNow)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})

	t.Run("decided steps keep their outcome", func(t *testing.T) {
		exec := twoStepExecution()
		require.NoError(t, exec.ApplyDecision(1, "mgr-1", ActionApprove, "", testNow))

		require.NoError(t, exec.Cancel(testNow))

		assert.Equal(t, StepApproved, exec.Steps[0].Status)
		assert.Equal(t, StepSkipped, exec.Steps[1].Status)
	})
}
