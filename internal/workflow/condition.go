// Package workflow contains the pure domain core of the approval engine:
// condition evaluation, workflow definitions, selection, auto-approval policy,
// role resolution and the execution state machine. Nothing in this package
// performs I/O.
package workflow

import (
	"strconv"

	"github.com/ledgerline/be-approvals/internal/errors"
)

// ConditionOp is the closed set of comparison operators a condition may use.
// Unknown operators are rejected at definition-validation time, never
// silently evaluated to false.
type ConditionOp string

const (
	OpEquals      ConditionOp = "equals"
	OpNotEquals   ConditionOp = "not_equals"
	OpGreaterThan ConditionOp = "greater_than"
	OpLessThan    ConditionOp = "less_than"
	OpIn          ConditionOp = "in"
)

// Condition is one comparison over a named invoice field. Operands are
// stored as strings; numeric comparisons parse both sides as float64.
type Condition struct {
	Field  string      `json:"field"`
	Op     ConditionOp `json:"op"`
	Value  string      `json:"value,omitempty"`
	Values []string    `json:"values,omitempty"` // operands for OpIn
}

// Validate checks the condition is structurally sound. Called when a
// workflow definition is created or updated, so evaluation never sees a
// malformed condition.
func (c Condition) Validate() error {
	if c.Field == "" {
		return errors.Configuration("condition field must not be empty")
	}
	switch c.Op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan:
		if c.Value == "" {
			return errors.Newf(errors.ErrCodeConfiguration,
				"condition on %q: operator %q requires a value", c.Field, c.Op)
		}
	case OpIn:
		if len(c.Values) == 0 {
			return errors.Newf(errors.ErrCodeConfiguration,
				"condition on %q: operator %q requires at least one value", c.Field, c.Op)
		}
	default:
		return errors.Newf(errors.ErrCodeConfiguration,
			"condition on %q: unknown operator %q", c.Field, c.Op)
	}
	return nil
}

// Evaluate applies the condition to a field value. fieldValue is either a
// float64 (amounts) or a string (currency, status, vendor). The function is
// pure and deterministic; malformed operator/operand combinations fail with
// a configuration error.
func (c Condition) Evaluate(fieldValue any) (bool, error) {
	switch c.Op {
	case OpEquals:
		return c.compareEqual(fieldValue)
	case OpNotEquals:
		eq, err := c.compareEqual(fieldValue)
		if err != nil {
			return false, err
		}
		return !eq, nil
	case OpGreaterThan:
		cmp, err := c.compareNumeric(fieldValue)
		if err != nil {
			return false, err
		}
		return cmp > 0, nil
	case OpLessThan:
		cmp, err := c.compareNumeric(fieldValue)
		if err != nil {
			return false, err
		}
		return cmp < 0, nil
	case OpIn:
		for _, v := range c.Values {
			eq, err := equalScalar(fieldValue, v)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errors.Newf(errors.ErrCodeConfiguration,
			"condition on %q: unknown operator %q", c.Field, c.Op)
	}
}

func (c Condition) compareEqual(fieldValue any) (bool, error) {
	return equalScalar(fieldValue, c.Value)
}

// compareNumeric returns sign(fieldValue - operand). Both sides must parse
// as numbers.
func (c Condition) compareNumeric(fieldValue any) (int, error) {
	fv, ok := asFloat(fieldValue)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeConfiguration,
			"condition on %q: operator %q requires a numeric field", c.Field, c.Op)
	}
	operand, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeConfiguration,
			"condition on %q: operand %q is not numeric", c.Field, c.Value)
	}
	switch {
	case fv > operand:
		return 1, nil
	case fv < operand:
		return -1, nil
	default:
		return 0, nil
	}
}

// equalScalar compares a field value with a string operand. Numeric fields
// compare as float64 (operand must parse); string fields compare exactly.
func equalScalar(fieldValue any, operand string) (bool, error) {
	if fv, ok := asFloat(fieldValue); ok {
		ov, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return false, errors.Newf(errors.ErrCodeConfiguration,
				"operand %q is not numeric", operand)
		}
		return fv == ov, nil
	}
	s, ok := fieldValue.(string)
	if !ok {
		return false, errors.Newf(errors.ErrCodeConfiguration,
			"unsupported field value type %T", fieldValue)
	}
	return s == operand, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
