package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/be-approvals/internal/errors"
)

func TestCondition_Evaluate(t *testing.T) {
	tests := []struct {
		name  string
		cond  Condition
		value any
		want  bool
	}{
		{"equals numeric match", Condition{Field: "total_amount", Op: OpEquals, Value: "5000"}, float64(5000), true},
		{"equals numeric mismatch", Condition{Field: "total_amount", Op: OpEquals, Value: "5000"}, float64(4999), false},
		{"equals string match", Condition{Field: "currency", Op: OpEquals, Value: "USD"}, "USD", true},
		{"equals string mismatch", Condition{Field: "currency", Op: OpEquals, Value: "USD"}, "EUR", false},
		{"not equals", Condition{Field: "currency", Op: OpNotEquals, Value: "USD"}, "EUR", true},
		{"greater than true", Condition{Field: "total_amount", Op: OpGreaterThan, Value: "100000"}, float64(250000), true},
		{"greater than false", Condition{Field: "total_amount", Op: OpGreaterThan, Value: "100000"}, float64(100000), false},
		{"less than true", Condition{Field: "total_amount", Op: OpLessThan, Value: "100000"}, float64(99999), true},
		{"less than false", Condition{Field: "total_amount", Op: OpLessThan, Value: "100000"}, float64(100000), false},
		{"in match", Condition{Field: "currency", Op: OpIn, Values: []string{"USD", "EUR"}}, "EUR", true},
		{"in no match", Condition{Field: "currency", Op: OpIn, Values: []string{"USD", "EUR"}}, "GBP", false},
		{"in numeric match", Condition{Field: "total_amount", Op: OpIn, Values: []string{"100", "200"}}, float64(200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_Evaluate_Errors(t *testing.T) {
	t.Run("unknown operator", func(t *testing.T) {
		cond := Condition{Field: "currency", Op: "matches", Value: "USD"}
		_, err := cond.Evaluate("USD")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
	})

	t.Run("ordering on string field", func(t *testing.T) {
		cond := Condition{Field: "currency", Op: OpGreaterThan, Value: "USD"}
		_, err := cond.Evaluate("USD")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
	})

	t.Run("non-numeric operand against numeric field", func(t *testing.T) {
		cond := Condition{Field: "total_amount", Op: OpGreaterThan, Value: "lots"}
		_, err := cond.Evaluate(float64(100))
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
	})
}

func TestCondition_Evaluate_Deterministic(t *testing.T) {
	cond := Condition{Field: "total_amount", Op: OpLessThan, Value: "100000"}
	for i := 0; i < 10; i++ {
		got, err := cond.Evaluate(float64(500))
		require.NoError(t, err)
		assert.True(t, got)
	}
}

func TestCondition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"valid equals", Condition{Field: "currency", Op: OpEquals, Value: "USD"}, false},
		{"valid in", Condition{Field: "currency", Op: OpIn, Values: []string{"USD"}}, false},
		{"empty field", Condition{Op: OpEquals, Value: "USD"}, true},
		{"unknown operator", Condition{Field: "currency", Op: "regex", Value: ".*"}, true},
		{"missing value", Condition{Field: "currency", Op: OpEquals}, true},
		{"in without values", Condition{Field: "currency", Op: OpIn}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cond.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
