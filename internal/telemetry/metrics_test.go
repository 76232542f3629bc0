package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratamed/policymatch/internal/types"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v, want nil", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, metric := range fam.GetMetric() {
			got := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)

	m.RecordDecision(types.DecisionDeny)
	m.RecordDecision(types.DecisionDeny)
	m.RecordDecision(types.DecisionApprove)
	m.RecordEvaluation(types.CategoryExclusion, types.TriTrue)
	m.RecordMissingFields([]string{"bmi", "age"})
	m.RecordChunk(types.CategoryEligibility)
	m.RecordDraft(types.CategoryEligibility)
	m.RecordHTTPRequest("/v1/decisions", 200, 25*time.Millisecond)

	if got := counterValue(t, reg, "policymatch_decisions_total", map[string]string{"outcome": "DENY"}); got != 2 {
		t.Errorf("decisions_total{outcome=DENY} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "policymatch_decisions_total", map[string]string{"outcome": "APPROVE"}); got != 1 {
		t.Errorf("decisions_total{outcome=APPROVE} = %v, want 1", got)
	}
	if got := counterValue(t, reg, "policymatch_rule_evaluations_total", map[string]string{"category": "EXCLUSION", "outcome": "TRUE"}); got != 1 {
		t.Errorf("rule_evaluations_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "policymatch_missing_fields_total", map[string]string{"field": "bmi"}); got != 1 {
		t.Errorf("missing_fields_total{field=bmi} = %v, want 1", got)
	}
}

func TestMetricsHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.RecordChunk(types.CategoryExclusion)

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))

	if res.Code != 200 {
		t.Fatalf("metrics handler status = %d, want 200", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "policymatch_chunks_ingested_total") {
		t.Errorf("metrics body missing chunk counter:\n%s", body)
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.RecordDecision(types.DecisionApprove)
	m.RecordEvaluation(types.CategoryEligibility, types.TriFalse)
	m.RecordMissingFields([]string{"age"})
	m.RecordChunk(types.CategoryDocumentation)
	m.RecordDraft(types.CategoryExclusion)
	m.RecordHTTPRequest("/healthz", 200, time.Millisecond)
	if m.Handler() == nil {
		t.Error("Handler() on nil metrics = nil, want default handler")
	}
}
