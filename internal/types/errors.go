package types

import (
	"errors"
	"fmt"
)

// The error taxonomy callers branch on. Structured errors carry the
// offending field or expression so API responses and logs can name it;
// match with errors.As. Lookup failures are plain sentinels; match with
// errors.Is.

// ValidationError reports an expression the compiler rejected: malformed
// syntax, a construct outside the whitelisted grammar, or an operand kind
// the operator does not accept.
type ValidationError struct {
	Expression string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expression, e.Reason)
}

// UnknownFieldError reports an expression referencing a field that is not in
// the patient schema. Kept distinct from ValidationError because it usually
// means the extractor hallucinated a field name, not that syntax broke.
type UnknownFieldError struct {
	Expression string
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q in expression %q", e.Field, e.Expression)
}

// SchemaError reports a patient payload the normalizer rejected: a required
// field absent, or a value whose shape does not fit the field's kind.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("patient field %q: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an illegal lifecycle operation on a rule.
// From is the rule's current status, To the requested one. Same-state
// requests never produce this error; they are idempotent no-ops.
type InvalidTransitionError struct {
	ID   RuleID
	From RuleStatus
	To   RuleStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("rule %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// ErrInvalidRuleID indicates a rule id that does not match the
// R-<prefix>-<seq> scheme.
var ErrInvalidRuleID = errors.New("invalid rule id")

// ErrRuleNotFound indicates a rule id with no record in the registry.
var ErrRuleNotFound = errors.New("rule not found")

// ErrChunkNotFound indicates a chunk id with no record in the registry.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrDocumentNotFound indicates a document id with no record in the registry.
var ErrDocumentNotFound = errors.New("document not found")

// ErrDocumentTooLarge indicates a policy document over MaxDocumentSize.
var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// ErrEmptyDocument indicates a policy document with no text to split.
var ErrEmptyDocument = errors.New("document contains no text")
