package types

import "time"

// Rule is one revision of an extracted policy rule. The registry is
// append-only: every lifecycle transition or edit appends a complete Rule
// record, so a Rule value is immutable once written. Content edits bump
// Version; status-only transitions keep it.
type Rule struct {
	ID            RuleID     `json:"id"`
	Category      Category   `json:"category"`
	Version       int        `json:"version"`
	Expression    string     `json:"logic_expression"`
	Status        RuleStatus `json:"status"`
	SourceChunkID ChunkID    `json:"source_chunk_id"`
	Confidence    float64    `json:"confidence"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Chunk is one clause sliced out of a policy document, retained verbatim as
// rule provenance. LowConfidence marks chunks the classifier could not match
// to any category; they land in DOCUMENTATION but are never dropped.
type Chunk struct {
	ID            ChunkID    `json:"id"`
	DocumentID    DocumentID `json:"document_id"`
	Ordinal       int        `json:"ordinal"`
	Marker        string     `json:"marker"`
	Text          string     `json:"text"`
	Category      Category   `json:"category"`
	Confidence    float64    `json:"confidence"`
	LowConfidence bool       `json:"low_confidence"`
}

// PolicyDocument records the source document a batch of chunks came from.
// EffectiveDate stays a raw string: payers format dates inconsistently and
// the value is provenance, not input to evaluation.
type PolicyDocument struct {
	ID            DocumentID `json:"id"`
	Payer         string     `json:"payer"`
	PolicyID      string     `json:"policy_id"`
	Title         string     `json:"title"`
	EffectiveDate string     `json:"effective_date"`
	SourcePath    string     `json:"source_path"`
	IngestedAt    time.Time  `json:"ingested_at"`
}

// EvaluationResult is the outcome of one rule against one patient context.
// Evidence holds every field the interpreter consulted, keyed by field name,
// with the normalized value seen (nil for absent fields). Missing lists the
// consulted-but-absent field names, sorted and deduplicated.
type EvaluationResult struct {
	RuleID   RuleID         `json:"rule_id"`
	Category Category       `json:"category"`
	Version  int            `json:"version"`
	Outcome  Tristate       `json:"outcome"`
	Evidence map[string]any `json:"evidence"`
	Missing  []string       `json:"missing_fields,omitempty"`
}

// CaseDecision is the aggregate decision for one authorization case.
// Deciding names the rule ids that forced the outcome: the short-circuiting
// exclusion, every failed eligibility or necessity rule, or every
// indeterminate rule. Results holds per-rule outcomes in evaluation order,
// truncated at the point an exclusion short-circuited.
type CaseDecision struct {
	CaseID      CaseID             `json:"case_id"`
	Outcome     Decision           `json:"decision"`
	Deciding    []RuleID           `json:"deciding_rules"`
	Results     []EvaluationResult `json:"results"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}
