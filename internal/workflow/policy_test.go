package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideAutoApproval(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		threshold *int64
		floor     *int64
		want      PolicyOutcome
	}{
		{"below threshold bypasses", 50000, i64(100000), nil, Bypass},
		{"at threshold bypasses", 100000, i64(100000), nil, Bypass},
		{"above threshold runs steps", 100001, i64(100000), nil, RequireSteps},
		{"no thresholds runs steps", 500, nil, nil, RequireSteps},
		{"floor overrides threshold", 150000, i64(200000), i64(100000), RequireSteps},
		{"at floor may bypass", 100000, i64(100000), i64(100000), Bypass},
		{"floor alone never bypasses below it", 500, nil, i64(100000), RequireSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &WorkflowDefinition{
				AutoApproveThreshold: tt.threshold,
				RequireApprovalAbove: tt.floor,
			}
			got := DecideAutoApproval(&Invoice{TotalAmount: tt.amount}, def)
			assert.Equal(t, tt.want, got)
		})
	}
}
