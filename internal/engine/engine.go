// internal/engine/engine.go

// Package engine evaluates rules against patient contexts and aggregates
// per-rule outcomes into case decisions.
package engine

import (
	"fmt"
	"sync"

	"github.com/stratamed/policymatch/internal/expr"
	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Program cache.
 *
 * Rules are immutable per (id, version): a content edit always bumps the
 * version, so a cached program can never go stale. The cache therefore
 * needs no invalidation, only the double-checked RWMutex pattern to keep
 * concurrent case evaluations from recompiling the same rule.
 *
 * Compilation failures here mean a corrupt store or a bypassed registry:
 * the registry compiles every draft before it is ever persisted. They
 * surface as errors rather than panics so one bad record cannot take the
 * service down.
 */

type programKey struct {
	id      types.RuleID
	version int
}

// Engine evaluates rules with compiled-program caching. Safe for
// concurrent use.
type Engine struct {
	mu       sync.RWMutex
	programs map[programKey]*expr.Program
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{programs: make(map[programKey]*expr.Program)}
}

func (e *Engine) program(rule types.Rule) (*expr.Program, error) {
	key := programKey{id: rule.ID, version: rule.Version}

	e.mu.RLock()
	p, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := expr.Compile(rule.Expression)
	if err != nil {
		return nil, fmt.Errorf("compile rule %s v%d: %w", rule.ID, rule.Version, err)
	}

	e.mu.Lock()
	e.programs[key] = p
	e.mu.Unlock()
	return p, nil
}

// EvaluateRule evaluates one rule against a normalized context.
func (e *Engine) EvaluateRule(rule types.Rule, pc *types.PatientContext) (types.EvaluationResult, error) {
	p, err := e.program(rule)
	if err != nil {
		return types.EvaluationResult{}, err
	}

	res := p.Evaluate(pc)
	return types.EvaluationResult{
		RuleID:   rule.ID,
		Category: rule.Category,
		Version:  rule.Version,
		Outcome:  res.Value,
		Evidence: res.Evidence,
		Missing:  res.Missing,
	}, nil
}
