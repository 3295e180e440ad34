package workflow

import (
	"github.com/ledgerline/be-approvals/internal/errors"
)

// SelectDefinition picks the workflow definition that applies to an invoice
// from the tenant's configured set. Only active definitions are considered;
// a definition matches when all of its selection conditions hold. When
// several match, the default wins. When none match, the default (if any) is
// used as fallback. Selection is deterministic and side-effect free.
func SelectDefinition(invoice *Invoice, definitions []*WorkflowDefinition) (*WorkflowDefinition, error) {
	var (
		matches  []*WorkflowDefinition
		fallback *WorkflowDefinition
	)

	for _, def := range definitions {
		if !def.IsActive || def.TenantID != invoice.TenantID {
			continue
		}
		if def.IsDefault && fallback == nil {
			fallback = def
		}
		ok, err := invoice.EvaluateAll(def.SelectionConditions)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, def)
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		for _, def := range matches {
			if def.IsDefault {
				return def, nil
			}
		}
		// Ambiguous but stable: first match in configured order.
		return matches[0], nil
	case fallback != nil:
		return fallback, nil
	}

	return nil, errors.Configuration("no applicable workflow")
}
