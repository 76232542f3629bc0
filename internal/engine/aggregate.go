// internal/engine/aggregate.go
package engine

import (
	"sort"
	"time"

	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Case aggregation.
 *
 * Decision precedence, applied in order:
 *   1. Any EXCLUSION rule TRUE        -> DENY, immediately
 *   2. Any ELIGIBILITY or
 *      MEDICAL_NECESSITY rule FALSE   -> DENY
 *   3. Any rule INDETERMINATE         -> PEND
 *   4. Otherwise                      -> APPROVE
 *
 * A true exclusion short-circuits the whole case: remaining rules are not
 * evaluated and Results is truncated at that point. A false DOCUMENTATION
 * rule never denies; at worst an indeterminate one pends the case.
 *
 * Evaluation order is the precedence order (exclusions first, then
 * eligibility, necessity, documentation; numeric id order within a
 * category), which both makes the short-circuit maximally effective and
 * keeps Results deterministic for identical inputs.
 *
 * Why stable sort: rules with equal rank must keep their caller-supplied
 * order so malformed ids cannot make two evaluations of the same case
 * disagree about Results order.
 */

// evaluationRank orders categories for case evaluation. Distinct from the
// registry's listing order, which follows policy reading order.
var evaluationRank = map[types.Category]int{
	types.CategoryExclusion:        0,
	types.CategoryEligibility:      1,
	types.CategoryMedicalNecessity: 2,
	types.CategoryDocumentation:    3,
}

func ruleBefore(a, b types.Rule) bool {
	ra, rb := evaluationRank[a.Category], evaluationRank[b.Category]
	if ra != rb {
		return ra < rb
	}
	_, sa, errA := types.SplitRuleID(a.ID)
	_, sb, errB := types.SplitRuleID(b.ID)
	if errA == nil && errB == nil && sa != sb {
		return sa < sb
	}
	return a.ID < b.ID
}

// EvaluateCase evaluates every rule against the context and aggregates the
// outcomes into a decision. Callers pass the rules a case should be judged
// by, normally every APPROVED and INDEXED rule in the registry.
func (e *Engine) EvaluateCase(rules []types.Rule, pc *types.PatientContext) (types.CaseDecision, error) {
	ordered := append([]types.Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ruleBefore(ordered[i], ordered[j])
	})

	decision := types.CaseDecision{
		CaseID:      types.NewCaseID(),
		Deciding:    []types.RuleID{},
		Results:     []types.EvaluationResult{},
		EvaluatedAt: time.Now().UTC(),
	}

	for _, rule := range ordered {
		res, err := e.EvaluateRule(rule, pc)
		if err != nil {
			return types.CaseDecision{}, err
		}
		decision.Results = append(decision.Results, res)

		if rule.Category == types.CategoryExclusion && res.Outcome == types.TriTrue {
			decision.Outcome = types.DecisionDeny
			decision.Deciding = []types.RuleID{rule.ID}
			return decision, nil
		}
	}

	var failed, indeterminate []types.RuleID
	for _, res := range decision.Results {
		switch res.Outcome {
		case types.TriFalse:
			if res.Category == types.CategoryEligibility || res.Category == types.CategoryMedicalNecessity {
				failed = append(failed, res.RuleID)
			}
		case types.TriIndeterminate:
			indeterminate = append(indeterminate, res.RuleID)
		}
	}

	switch {
	case len(failed) > 0:
		decision.Outcome = types.DecisionDeny
		decision.Deciding = failed
	case len(indeterminate) > 0:
		decision.Outcome = types.DecisionPend
		decision.Deciding = indeterminate
	default:
		decision.Outcome = types.DecisionApprove
	}
	return decision, nil
}
