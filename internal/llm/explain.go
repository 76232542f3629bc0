package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stratamed/policymatch/internal/types"
)

// Explainer renders a case decision as reviewer-facing prose. With a client
// it asks the model to write the explanation; without one, or when the model
// call fails, it falls back to a deterministic template. The fallback means
// Explain always produces text.
type Explainer struct {
	client *Client
	logger *slog.Logger
}

// NewExplainer builds an explainer. A nil client selects the template path.
func NewExplainer(client *Client, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		client: client,
		logger: logger.With("component", "explainer"),
	}
}

const explainSystemPrompt = `You explain prior-authorization decisions to clinical reviewers.
You receive a JSON object with the decision outcome, the rules that forced it, and per-rule results.
Write a short plain-language explanation: state the outcome, then why, citing rule ids.
TRUE on an exclusion rule or FALSE on an eligibility or medical necessity rule means denial.
INDETERMINATE means required patient data was missing and the case is pended for manual review.
Do not invent facts beyond the JSON. Two to four sentences, no markdown.`

// Explain produces the explanation text for a decision. rules supplies the
// expressions behind the rule ids in the decision, for citation.
func (e *Explainer) Explain(ctx context.Context, decision types.CaseDecision, rules []types.Rule) string {
	if e.client == nil {
		return templateExplanation(decision, rules)
	}

	payload := struct {
		Decision types.CaseDecision `json:"decision"`
		Rules    []types.Rule       `json:"rules"`
	}{decision, rules}

	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("explanation payload marshal failed, using template", "error", err)
		return templateExplanation(decision, rules)
	}

	text, err := e.client.Complete(ctx, explainSystemPrompt, string(body))
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("model explanation failed, using template", "case_id", decision.CaseID, "error", err)
		return templateExplanation(decision, rules)
	}
	return text
}

// templateExplanation is the deterministic fallback. It names the outcome,
// the deciding rules with their expressions and observed evidence, and any
// fields whose absence pended the case.
func templateExplanation(decision types.CaseDecision, rules []types.Rule) string {
	exprByID := make(map[types.RuleID]string, len(rules))
	for _, r := range rules {
		exprByID[r.ID] = r.Expression
	}
	resultByID := make(map[types.RuleID]types.EvaluationResult, len(decision.Results))
	for _, res := range decision.Results {
		resultByID[res.RuleID] = res
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s.", decision.Outcome)

	switch decision.Outcome {
	case types.DecisionApprove:
		b.WriteString(" Every applicable rule was satisfied.")
	case types.DecisionDeny:
		b.WriteString(" Denied by rule")
		if len(decision.Deciding) > 1 {
			b.WriteString("s")
		}
		b.WriteString(" ")
		b.WriteString(describeRules(decision.Deciding, exprByID, resultByID))
		b.WriteString(".")
	case types.DecisionPend:
		b.WriteString(" Pended for manual review: rule")
		if len(decision.Deciding) > 1 {
			b.WriteString("s")
		}
		b.WriteString(" ")
		b.WriteString(describeRules(decision.Deciding, exprByID, resultByID))
		if missing := missingFields(decision); len(missing) > 0 {
			fmt.Fprintf(&b, " could not be evaluated; missing patient data: %s", strings.Join(missing, ", "))
		} else {
			b.WriteString(" could not be evaluated")
		}
		b.WriteString(".")
	}
	return b.String()
}

func describeRules(ids []types.RuleID, exprByID map[types.RuleID]string, resultByID map[types.RuleID]types.EvaluationResult) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		part := string(id)
		if expr, ok := exprByID[id]; ok {
			part = fmt.Sprintf("%s (%s)", id, expr)
		}
		if res, ok := resultByID[id]; ok && len(res.Evidence) > 0 {
			part += " with " + formatEvidence(res.Evidence)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func formatEvidence(evidence map[string]any) string {
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, evidence[k]))
	}
	return strings.Join(parts, ", ")
}

// missingFields collects the union of missing field names across results,
// sorted and deduplicated.
func missingFields(decision types.CaseDecision) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, res := range decision.Results {
		for _, f := range res.Missing {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields)
	return fields
}
