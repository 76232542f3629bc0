// Package review moves draft rules through human sign-off. It offers two
// paths: AutoApprove for unattended promotion of high-confidence drafts, and
// an interactive terminal UI for everything a reviewer should look at.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

// Totals summarizes one auto-approval pass.
type Totals struct {
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
}

// AutoApprove approves every draft whose extraction confidence meets
// minConfidence. Drafts below the threshold are left untouched for
// interactive review; nothing is ever rejected automatically.
func AutoApprove(ctx context.Context, reg *registry.Registry, minConfidence float64, logger *slog.Logger) (Totals, error) {
	drafts, err := reg.List(ctx, registry.Filter{Statuses: []types.RuleStatus{types.StatusDraft}})
	if err != nil {
		return Totals{}, fmt.Errorf("review: list drafts: %w", err)
	}

	var totals Totals
	for _, rule := range drafts {
		if rule.Confidence < minConfidence {
			totals.Skipped++
			continue
		}
		if _, err := reg.Approve(ctx, rule.ID); err != nil {
			return totals, fmt.Errorf("review: approve %s: %w", rule.ID, err)
		}
		logger.Info("draft auto-approved",
			"rule_id", rule.ID,
			"category", rule.Category,
			"confidence", rule.Confidence)
		totals.Approved++
	}

	logger.Info("auto-approval pass finished",
		"approved", totals.Approved,
		"skipped", totals.Skipped,
		"min_confidence", minConfidence)
	return totals, nil
}
