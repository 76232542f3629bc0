// internal/engine/engine_test.go
package engine

import (
	"testing"

	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/types"
)

func testRule(id string, cat types.Category, source string) types.Rule {
	return types.Rule{
		ID:         types.RuleID(id),
		Category:   cat,
		Version:    1,
		Expression: source,
		Status:     types.StatusApproved,
		Confidence: 0.9,
	}
}

func testContext(t *testing.T, raw map[string]any) *types.PatientContext {
	t.Helper()
	pc, err := patient.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	return pc
}

func TestEvaluateRule(t *testing.T) {
	e := New()
	pc := testContext(t, map[string]any{
		"age":             float64(17),
		"diagnosis_codes": []any{"M17.11"},
	})

	res, err := e.EvaluateRule(testRule("R-EL-01", types.CategoryEligibility, "age >= 18"), pc)
	if err != nil {
		t.Fatalf("EvaluateRule() error = %v, want nil", err)
	}
	if res.RuleID != "R-EL-01" || res.Category != types.CategoryEligibility || res.Version != 1 {
		t.Errorf("result identity = %s/%s/v%d, want R-EL-01/ELIGIBILITY/v1", res.RuleID, res.Category, res.Version)
	}
	if res.Outcome != types.TriFalse {
		t.Errorf("Outcome = %v, want FALSE", res.Outcome)
	}
	if got := res.Evidence["age"]; got != float64(17) {
		t.Errorf("Evidence[age] = %v, want 17", got)
	}
}

func TestEvaluateRuleCachesPrograms(t *testing.T) {
	e := New()
	pc := testContext(t, map[string]any{"diagnosis_codes": []any{"M17.11"}})

	r := testRule("R-MN-01", types.CategoryMedicalNecessity, "'M17.11' in diagnosis_codes")
	for i := 0; i < 5; i++ {
		if _, err := e.EvaluateRule(r, pc); err != nil {
			t.Fatalf("EvaluateRule() error = %v, want nil", err)
		}
	}
	if len(e.programs) != 1 {
		t.Errorf("cache size = %d, want 1", len(e.programs))
	}

	edited := r
	edited.Version = 2
	edited.Expression = "'M17.12' in diagnosis_codes"
	if _, err := e.EvaluateRule(edited, pc); err != nil {
		t.Fatalf("EvaluateRule(v2) error = %v, want nil", err)
	}
	if len(e.programs) != 2 {
		t.Errorf("cache size after version bump = %d, want 2", len(e.programs))
	}
}

func TestEvaluateRuleBadExpression(t *testing.T) {
	e := New()
	pc := testContext(t, map[string]any{"diagnosis_codes": []any{"M17.11"}})

	_, err := e.EvaluateRule(testRule("R-EL-01", types.CategoryEligibility, "age >= "), pc)
	if err == nil {
		t.Fatal("EvaluateRule(bad expression) error = nil, want error")
	}
}
