package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

type decisionRequest struct {
	CaseID  string         `json:"case_id"`
	Patient map[string]any `json:"patient"`
	Explain bool           `json:"explain"`
}

type decisionResponse struct {
	types.CaseDecision
	Explanation string `json:"explanation,omitempty"`
}

// handleDecisions normalizes the patient payload, evaluates every APPROVED
// and INDEXED rule against it, and returns the aggregated decision. With
// explain set and an explainer configured the response carries a
// reviewer-facing summary as well.
func (s *Service) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Patient == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("patient is required"))
		return
	}

	pc, err := patient.Normalize(req.Patient)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	rules, err := s.registry.List(r.Context(), registry.Filter{
		Statuses: []types.RuleStatus{types.StatusApproved, types.StatusIndexed},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	decision, err := s.engine.EvaluateCase(rules, pc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.CaseID != "" {
		decision.CaseID = types.CaseID(req.CaseID)
	}

	s.metrics.RecordDecision(decision.Outcome)
	for _, res := range decision.Results {
		s.metrics.RecordEvaluation(res.Category, res.Outcome)
		s.metrics.RecordMissingFields(res.Missing)
	}

	resp := decisionResponse{CaseDecision: decision}
	if req.Explain && s.explainer != nil {
		resp.Explanation = s.explainer.Explain(r.Context(), decision, rules)
	}

	s.logger.Info("case decided",
		"case_id", decision.CaseID,
		"decision", decision.Outcome,
		"rules", len(rules),
		"deciding", len(decision.Deciding))
	s.writeJSON(w, http.StatusOK, resp)
}
