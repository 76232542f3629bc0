package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stratamed/policymatch/internal/expr"
	"github.com/stratamed/policymatch/internal/llm"
	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/types"
)

// LLM extracts rule candidates by asking a language model to translate the
// clause into the rule grammar. The model only ever sees policy text, never
// patient data. Its output is untrusted: the expression must compile against
// the closed grammar here, and the registry validates again on Add.
type LLM struct {
	client *llm.Client
	logger *slog.Logger
}

// NewLLM builds a model-backed extractor over client.
func NewLLM(client *llm.Client, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		client: client,
		logger: logger.With("component", "llm-extractor"),
	}
}

// extractReply is the JSON contract the model is instructed to follow.
type extractReply struct {
	Decline    bool    `json:"decline"`
	Expression string  `json:"expression"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

const extractPromptTemplate = `You translate one clause from a clinical prior-authorization policy into a boolean condition over a fixed patient schema.

Schema fields: %s.

Expression grammar:
- comparisons: field == value, !=, <, <=, >, >= (numbers unquoted, strings in single quotes)
- set membership: 'CODE' in diagnosis_codes
- list membership: gender in ['F', 'M']
- boolean fields stand alone: conservative_therapy_tried, not tobacco_user
- combine with and, or, not, parentheses
No other syntax exists. No function calls, no date arithmetic.

The clause category sets the polarity. EXCLUSION clauses describe the condition that disqualifies: the expression must be true exactly when the patient is excluded. ELIGIBILITY and MEDICAL_NECESSITY clauses describe what must hold for approval. DOCUMENTATION clauses only translate when they require a schema flag, such as documented conservative therapy.

Reply with a single JSON object and nothing else:
{"decline": boolean, "expression": string, "confidence": number between 0 and 1, "rationale": string}

Set decline to true with an empty expression when the clause states no condition checkable against the schema. Never invent fields or codes not present in the clause.`

// extractSystemPrompt is built once; the field list comes from the live
// schema so prompt and validator cannot drift apart.
var extractSystemPrompt = fmt.Sprintf(extractPromptTemplate, schemaSummary())

func schemaSummary() string {
	fields := make([]string, 0, len(patient.FieldKinds))
	for name, kind := range patient.FieldKinds {
		fields = append(fields, fmt.Sprintf("%s (%s)", name, kind))
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}

// Extract sends the chunk to the model and validates the reply. A malformed
// reply or a non-compiling expression is an error, not a decline: the caller
// should know the extractor misbehaved rather than silently lose the chunk.
func (e *LLM) Extract(ctx context.Context, chunk types.Chunk) (Candidate, bool, error) {
	user := fmt.Sprintf("Category: %s\nClause:\n%s", chunk.Category, chunk.Text)

	raw, err := e.client.CompleteJSON(ctx, extractSystemPrompt, user)
	if err != nil {
		return Candidate{}, false, err
	}

	var reply extractReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return Candidate{}, false, fmt.Errorf("extractor reply is not valid JSON: %w", err)
	}

	expression := strings.TrimSpace(reply.Expression)
	if reply.Decline || expression == "" {
		e.logger.Debug("model declined chunk", "chunk_id", chunk.ID, "rationale", reply.Rationale)
		return Candidate{}, false, nil
	}

	if _, err := expr.Compile(expression); err != nil {
		return Candidate{}, false, fmt.Errorf("extractor proposed invalid expression %q: %w", expression, err)
	}

	confidence := reply.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Candidate{
		Expression: expression,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(reply.Rationale),
	}, true, nil
}
