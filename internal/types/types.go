// Package types provides domain models shared across PolicyMatch components.
//
// Zero-dependency design: types.go, patient.go, rules.go and errors.go use
// only the standard library. ID utilities in ids.go import uuid but are
// isolated so callers that never mint IDs avoid the dependency.
//
// Enum-like types serialize as their canonical uppercase strings so the same
// values appear in JSON responses, persisted records and log output.
package types

import "fmt"

// Category classifies a policy clause and the rules extracted from it.
// Values match the persisted and wire representation exactly.
type Category string

const (
	CategoryEligibility      Category = "ELIGIBILITY"
	CategoryMedicalNecessity Category = "MEDICAL_NECESSITY"
	CategoryExclusion        Category = "EXCLUSION"
	CategoryDocumentation    Category = "DOCUMENTATION"
)

// Categories lists all categories in policy reading order. Listing and
// reporting iterate this slice so output order never depends on map order.
var Categories = []Category{
	CategoryEligibility,
	CategoryMedicalNecessity,
	CategoryExclusion,
	CategoryDocumentation,
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEligibility, CategoryMedicalNecessity, CategoryExclusion, CategoryDocumentation:
		return true
	}
	return false
}

// ParseCategory converts a string to a Category, rejecting unknown values.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// RuleStatus is the review lifecycle state of a rule.
//
// Legal transitions: DRAFT -> APPROVED, DRAFT -> REJECTED,
// APPROVED -> INDEXED. REJECTED and INDEXED are terminal. A transition to
// the current state is an idempotent no-op; anything else fails with
// InvalidTransitionError.
type RuleStatus string

const (
	StatusDraft    RuleStatus = "DRAFT"
	StatusApproved RuleStatus = "APPROVED"
	StatusRejected RuleStatus = "REJECTED"
	StatusIndexed  RuleStatus = "INDEXED"
)

// Valid reports whether s is one of the four known statuses.
func (s RuleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusRejected, StatusIndexed:
		return true
	}
	return false
}

// ParseRuleStatus converts a string to a RuleStatus, rejecting unknown values.
func ParseRuleStatus(s string) (RuleStatus, error) {
	st := RuleStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown rule status %q", s)
	}
	return st, nil
}

// Decision is the aggregate outcome for a case. Distinct from RuleStatus:
// statuses describe where a rule sits in review, decisions describe what the
// approved rule set concluded about one patient.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
	DecisionPend    Decision = "PEND"
)

// Tristate is a Kleene three-valued truth value. The integer ordering
// FALSE < INDETERMINATE < TRUE makes conjunction a minimum and disjunction a
// maximum, so the truth tables fall out of two comparisons and a reflection.
type Tristate int

const (
	TriFalse         Tristate = 0
	TriIndeterminate Tristate = 1
	TriTrue          Tristate = 2
)

// TriFromBool lifts a two-valued bool into a Tristate.
func TriFromBool(b bool) Tristate {
	if b {
		return TriTrue
	}
	return TriFalse
}

// And returns the Kleene conjunction: false dominates, indeterminate
// contaminates an otherwise-true result.
func (t Tristate) And(o Tristate) Tristate {
	if o < t {
		return o
	}
	return t
}

// Or returns the Kleene disjunction: true dominates, indeterminate
// contaminates an otherwise-false result.
func (t Tristate) Or(o Tristate) Tristate {
	if o > t {
		return o
	}
	return t
}

// Not returns the Kleene negation. Indeterminate is its own negation.
func (t Tristate) Not() Tristate {
	return TriTrue - t
}

// String returns the canonical uppercase name used in JSON and logs.
func (t Tristate) String() string {
	switch t {
	case TriFalse:
		return "FALSE"
	case TriTrue:
		return "TRUE"
	default:
		return "INDETERMINATE"
	}
}

// MarshalJSON serializes the Tristate as its canonical string.
func (t Tristate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the canonical string form.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"FALSE"`:
		*t = TriFalse
	case `"INDETERMINATE"`:
		*t = TriIndeterminate
	case `"TRUE"`:
		*t = TriTrue
	default:
		return fmt.Errorf("unknown tristate %s", data)
	}
	return nil
}

// Resource limits enforced during compilation and ingestion to bound memory
// and keep evaluation latency predictable.
const (
	// MaxExpressionLength caps rule expression source size.
	// 4KB accommodates long membership lists without unbounded parser input.
	MaxExpressionLength = 4096

	// MaxExpressionDepth caps AST nesting to prevent stack overflow during
	// validation and interpretation of adversarial parenthesization.
	MaxExpressionDepth = 32

	// MaxListValues limits membership list literals to keep per-predicate
	// comparison cost linear and small.
	MaxListValues = 64

	// MaxSetValues limits normalized patient code/term sets. 256 entries
	// covers real claim histories; larger payloads indicate a malformed feed.
	MaxSetValues = 256

	// MaxDocumentSize caps ingested policy document size. 1MB covers any
	// plain-text policy; larger inputs should be split upstream.
	MaxDocumentSize = 1024 * 1024
)
