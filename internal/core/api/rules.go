package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

// handleRules lists rules, optionally narrowed by repeated status and
// category query parameters. Filter values are case-insensitive.
func (s *Service) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var filter registry.Filter
	for _, raw := range r.URL.Query()["status"] {
		st, err := types.ParseRuleStatus(strings.ToUpper(raw))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	for _, raw := range r.URL.Query()["category"] {
		c, err := types.ParseCategory(strings.ToUpper(raw))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Categories = append(filter.Categories, c)
	}

	rules, err := s.registry.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleRule dispatches /v1/rules/{id} and its sub-resources:
//
//	GET    /v1/rules/{id}          current revision
//	PATCH  /v1/rules/{id}          edit expression (new revision)
//	GET    /v1/rules/{id}/history  every revision, oldest first
//	POST   /v1/rules/{id}:approve  lifecycle transitions
//	POST   /v1/rules/{id}:reject
//	POST   /v1/rules/{id}:index
func (s *Service) handleRule(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/rules/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if id, sub, found := strings.Cut(rest, "/"); found {
		if sub != "history" {
			http.NotFound(w, r)
			return
		}
		s.handleRuleHistory(w, r, types.RuleID(id))
		return
	}

	// Rule ids never contain a colon, so a colon always marks an action.
	if id, action, found := strings.Cut(rest, ":"); found {
		s.handleRuleAction(w, r, types.RuleID(id), action)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleRuleGet(w, r, types.RuleID(rest))
	case http.MethodPatch:
		s.handleRuleEdit(w, r, types.RuleID(rest))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) handleRuleGet(w http.ResponseWriter, r *http.Request, id types.RuleID) {
	rule, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rule)
}

func (s *Service) handleRuleHistory(w http.ResponseWriter, r *http.Request, id types.RuleID) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history, err := s.registry.History(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history, "count": len(history)})
}

func (s *Service) handleRuleEdit(w http.ResponseWriter, r *http.Request, id types.RuleID) {
	var req struct {
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Expression) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("expression is required"))
		return
	}

	rule, err := s.registry.Edit(r.Context(), id, req.Expression)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info("rule edited", "rule_id", rule.ID, "version", rule.Version)
	s.writeJSON(w, http.StatusOK, rule)
}

func (s *Service) handleRuleAction(w http.ResponseWriter, r *http.Request, id types.RuleID, action string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		rule types.Rule
		err  error
	)
	switch action {
	case "approve":
		rule, err = s.registry.Approve(r.Context(), id)
	case "reject":
		rule, err = s.registry.Reject(r.Context(), id)
	case "index":
		rule, err = s.registry.MarkIndexed(r.Context(), id)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", action))
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info("rule transitioned", "rule_id", rule.ID, "status", rule.Status)
	s.writeJSON(w, http.StatusOK, rule)
}
