// Package patient normalizes raw patient payloads into the typed context the
// rule interpreter reads.
//
// The field schema is closed: expressions may only reference the names listed
// here, and the normalizer only populates these names. Raw payload keys
// outside the schema are ignored so upstream feeds can add data without
// breaking evaluation.
package patient

// FieldKind describes how a schema field is shaped and which expression
// operators accept it.
type FieldKind int

const (
	// KindNumber fields coerce from JSON numbers or numeric strings and
	// participate in ordering comparisons.
	KindNumber FieldKind = iota

	// KindString fields hold one canonical uppercase token and participate
	// in equality and list membership.
	KindString

	// KindBool fields accept strict JSON booleans only and stand alone as
	// atoms or under not.
	KindBool

	// KindCodeSet fields hold canonical clinical codes (uppercase,
	// separators stripped) and are the target of membership tests.
	KindCodeSet

	// KindTermSet fields hold canonical free-text terms (lowercased,
	// whitespace collapsed) and are the target of membership tests.
	KindTermSet
)

// String returns the kind name used in validation error messages.
func (k FieldKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindCodeSet:
		return "code set"
	case KindTermSet:
		return "term set"
	default:
		return "unknown"
	}
}

// FieldKinds is the closed patient schema. Adding a field here is the only
// way to make it referenceable from rule expressions.
var FieldKinds = map[string]FieldKind{
	"age":                        KindNumber,
	"bmi":                        KindNumber,
	"gender":                     KindString,
	"diagnosis_codes":            KindCodeSet,
	"procedure_codes":            KindCodeSet,
	"prior_treatments":           KindTermSet,
	"medications":                KindTermSet,
	"imaging_findings":           KindTermSet,
	"conservative_therapy_tried": KindBool,
	"tobacco_user":               KindBool,
}

// requiredFields must be present in every payload. Diagnosis codes are the
// clinical minimum for any authorization review; everything else may be
// absent and evaluates as indeterminate.
var requiredFields = []string{"diagnosis_codes"}

// KindOf reports the schema kind of a field name.
func KindOf(field string) (FieldKind, bool) {
	k, ok := FieldKinds[field]
	return k, ok
}

// IsSetKind reports whether a kind is a membership target.
func IsSetKind(k FieldKind) bool {
	return k == KindCodeSet || k == KindTermSet
}
