package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stratamed/policymatch/internal/classify"
	"github.com/stratamed/policymatch/internal/engine"
	"github.com/stratamed/policymatch/internal/extract"
	"github.com/stratamed/policymatch/internal/ingest"
	"github.com/stratamed/policymatch/internal/llm"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService builds a service over an in-memory registry with the
// heuristic extractor, the template explainer and no metrics.
func newTestService(t *testing.T) (*Service, *registry.Registry) {
	t.Helper()

	reg, err := registry.New(context.Background(), registry.NewMemStore(), testLogger())
	if err != nil {
		t.Fatalf("registry.New error: %v", err)
	}
	cls, err := classify.New(classify.DefaultLexicon())
	if err != nil {
		t.Fatalf("classify.New error: %v", err)
	}
	pipe := ingest.NewPipeline(reg, cls, extract.NewHeuristic(), nil, testLogger())

	svc, err := NewService(reg, engine.New(), pipe, llm.NewExplainer(nil, testLogger()), nil, testLogger())
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc, reg
}

// addRule seeds a draft and optionally walks it through the lifecycle.
func addRule(t *testing.T, reg *registry.Registry, category types.Category, expression string, status types.RuleStatus) types.Rule {
	t.Helper()

	rule, err := reg.Add(context.Background(), registry.Draft{
		Category:   category,
		Expression: expression,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	switch status {
	case types.StatusDraft:
	case types.StatusApproved:
		rule, err = reg.Approve(context.Background(), rule.ID)
	case types.StatusRejected:
		rule, err = reg.Reject(context.Background(), rule.ID)
	case types.StatusIndexed:
		if _, err = reg.Approve(context.Background(), rule.ID); err == nil {
			rule, err = reg.MarkIndexed(context.Background(), rule.ID)
		}
	}
	if err != nil {
		t.Fatalf("seeding %s rule: %v", status, err)
	}
	return rule
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestDocumentsEndpoint(t *testing.T) {
	svc, reg := newTestService(t)
	mux := svc.Mux()

	doc := `Clinical Policy: Knee Arthroplasty
Payer: Stratamed Health

Coverage Criteria

1. Member must be 18 years of age or older.
2. Not covered for current tobacco users.
`

	rec := do(t, mux, http.MethodPost, "/v1/documents?source=knee.txt", doc)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome struct {
		DocumentID string   `json:"document_id"`
		Chunks     int      `json:"chunks"`
		Drafts     []string `json:"drafts"`
	}
	decode(t, rec, &outcome)
	if outcome.DocumentID == "" {
		t.Fatal("outcome is missing document_id")
	}
	if outcome.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", outcome.Chunks)
	}
	if len(outcome.Drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %v", outcome.Drafts)
	}

	gotDoc, err := reg.GetDocument(context.Background(), types.DocumentID(outcome.DocumentID))
	if err != nil {
		t.Fatalf("ingested document not persisted: %v", err)
	}
	if gotDoc.SourcePath != "knee.txt" {
		t.Fatalf("expected source knee.txt, got %q", gotDoc.SourcePath)
	}

	t.Run("method not allowed", func(t *testing.T) {
		rec := do(t, mux, http.MethodGet, "/v1/documents", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/documents", "   \n")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty document, got %d", rec.Code)
		}
	})
}

func TestRulesList(t *testing.T) {
	svc, reg := newTestService(t)
	mux := svc.Mux()

	addRule(t, reg, types.CategoryEligibility, "age >= 18", types.StatusApproved)
	addRule(t, reg, types.CategoryExclusion, "tobacco_user", types.StatusDraft)
	addRule(t, reg, types.CategoryMedicalNecessity, "bmi >= 40", types.StatusRejected)

	var listing struct {
		Rules []types.Rule `json:"rules"`
		Count int          `json:"count"`
	}

	rec := do(t, mux, http.MethodGet, "/v1/rules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decode(t, rec, &listing)
	if listing.Count != 3 || len(listing.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %+v", listing)
	}

	rec = do(t, mux, http.MethodGet, "/v1/rules?status=draft", "")
	decode(t, rec, &listing)
	if listing.Count != 1 || listing.Rules[0].Category != types.CategoryExclusion {
		t.Fatalf("draft filter returned %+v", listing)
	}

	rec = do(t, mux, http.MethodGet, "/v1/rules?status=APPROVED&status=REJECTED", "")
	decode(t, rec, &listing)
	if listing.Count != 2 {
		t.Fatalf("expected 2 rules for two statuses, got %d", listing.Count)
	}

	rec = do(t, mux, http.MethodGet, "/v1/rules?category=eligibility", "")
	decode(t, rec, &listing)
	if listing.Count != 1 || listing.Rules[0].Expression != "age >= 18" {
		t.Fatalf("category filter returned %+v", listing)
	}

	rec = do(t, mux, http.MethodGet, "/v1/rules?status=pending", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestRuleGetEditHistory(t *testing.T) {
	svc, reg := newTestService(t)
	mux := svc.Mux()
	rule := addRule(t, reg, types.CategoryEligibility, "age >= 18", types.StatusDraft)

	rec := do(t, mux, http.MethodGet, "/v1/rules/"+string(rule.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got types.Rule
	decode(t, rec, &got)
	if got.ID != rule.ID || got.Version != 1 {
		t.Fatalf("unexpected rule %+v", got)
	}

	rec = do(t, mux, http.MethodPatch, "/v1/rules/"+string(rule.ID), `{"expression": "age >= 21"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for edit, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &got)
	if got.Version != 2 || got.Expression != "age >= 21" {
		t.Fatalf("edit did not bump revision: %+v", got)
	}

	t.Run("invalid expression", func(t *testing.T) {
		rec := do(t, mux, http.MethodPatch, "/v1/rules/"+string(rule.ID), `{"expression": "age >="}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := do(t, mux, http.MethodPatch, "/v1/rules/"+string(rule.ID), `{"expression": "height > 180"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("missing expression", func(t *testing.T) {
		rec := do(t, mux, http.MethodPatch, "/v1/rules/"+string(rule.ID), `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	rec = do(t, mux, http.MethodGet, "/v1/rules/"+string(rule.ID)+"/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", rec.Code)
	}
	var history struct {
		History []types.Rule `json:"history"`
		Count   int          `json:"count"`
	}
	decode(t, rec, &history)
	if history.Count != 2 || history.History[0].Version != 1 || history.History[1].Version != 2 {
		t.Fatalf("unexpected history %+v", history)
	}

	t.Run("not found", func(t *testing.T) {
		rec := do(t, mux, http.MethodGet, "/v1/rules/R-EL-99", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("unknown subresource", func(t *testing.T) {
		rec := do(t, mux, http.MethodGet, "/v1/rules/"+string(rule.ID)+"/chunks", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestRuleActions(t *testing.T) {
	svc, reg := newTestService(t)
	mux := svc.Mux()
	rule := addRule(t, reg, types.CategoryEligibility, "age >= 18", types.StatusDraft)

	rec := do(t, mux, http.MethodPost, "/v1/rules/"+string(rule.ID)+":approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for approve, got %d: %s", rec.Code, rec.Body.String())
	}
	var got types.Rule
	decode(t, rec, &got)
	if got.Status != types.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}

	t.Run("illegal transition", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/rules/"+string(rule.ID)+":reject", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 for approved->rejected, got %d", rec.Code)
		}
	})

	rec = do(t, mux, http.MethodPost, "/v1/rules/"+string(rule.ID)+":index", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for index, got %d", rec.Code)
	}
	decode(t, rec, &got)
	if got.Status != types.StatusIndexed {
		t.Fatalf("expected INDEXED, got %s", got.Status)
	}

	t.Run("unknown action", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/rules/"+string(rule.ID)+":promote", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := do(t, mux, http.MethodGet, "/v1/rules/"+string(rule.ID)+":approve", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}

func TestDecisionsEndpoint(t *testing.T) {
	svc, reg := newTestService(t)
	mux := svc.Mux()

	addRule(t, reg, types.CategoryEligibility, "age >= 18", types.StatusApproved)
	addRule(t, reg, types.CategoryExclusion, "tobacco_user", types.StatusIndexed)
	addRule(t, reg, types.CategoryMedicalNecessity, "'M17.11' in diagnosis_codes", types.StatusApproved)
	// Draft and rejected rules must not participate.
	addRule(t, reg, types.CategoryEligibility, "age >= 99", types.StatusDraft)
	addRule(t, reg, types.CategoryEligibility, "age >= 99", types.StatusRejected)

	body := `{
		"case_id": "case-123",
		"patient": {
			"age": 44,
			"tobacco_user": false,
			"diagnosis_codes": ["M17.11"]
		}
	}`

	rec := do(t, mux, http.MethodPost, "/v1/decisions", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		CaseID      string                   `json:"case_id"`
		Decision    string                   `json:"decision"`
		Deciding    []string                 `json:"deciding_rules"`
		Results     []types.EvaluationResult `json:"results"`
		Explanation string                   `json:"explanation"`
	}
	decode(t, rec, &resp)
	if resp.CaseID != "case-123" {
		t.Fatalf("case_id not honored: %q", resp.CaseID)
	}
	if resp.Decision != "APPROVE" {
		t.Fatalf("expected APPROVE, got %s", resp.Decision)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results (draft and rejected excluded), got %d", len(resp.Results))
	}
	if resp.Explanation != "" {
		t.Fatalf("explanation not requested but present: %q", resp.Explanation)
	}

	t.Run("deny with explanation", func(t *testing.T) {
		body := `{
			"explain": true,
			"patient": {
				"age": 44,
				"tobacco_user": true,
				"diagnosis_codes": ["M17.11"]
			}
		}`
		rec := do(t, mux, http.MethodPost, "/v1/decisions", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		decode(t, rec, &resp)
		if resp.Decision != "DENY" {
			t.Fatalf("expected DENY for tobacco user, got %s", resp.Decision)
		}
		if !strings.Contains(resp.Explanation, "DENY") {
			t.Fatalf("expected explanation, got %q", resp.Explanation)
		}
	})

	t.Run("pend on missing data", func(t *testing.T) {
		body := `{"patient": {"diagnosis_codes": ["M17.11"], "tobacco_user": false}}`
		rec := do(t, mux, http.MethodPost, "/v1/decisions", body)
		decode(t, rec, &resp)
		if resp.Decision != "PEND" {
			t.Fatalf("expected PEND without age, got %s", resp.Decision)
		}
	})

	t.Run("missing patient", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/decisions", `{"case_id": "x"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/decisions", `{"patient": {"age": 44}}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 without diagnosis_codes, got %d", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, mux, http.MethodPost, "/v1/decisions", `{"patient": `)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
