package types

import "sort"

// PatientContext is the typed, normalized view of a patient payload that the
// rule interpreter reads. Absence is explicit: optional scalars carry a Valid
// flag and optional sets are nil, so an absent field is never confused with
// zero, empty string or false. Construction goes through the patient package;
// rules never see raw payload values.
type PatientContext struct {
	Age                      OptionalNumber
	BMI                      OptionalNumber
	Gender                   OptionalString
	DiagnosisCodes           CodeSet
	ProcedureCodes           CodeSet
	PriorTreatments          TermSet
	Medications              TermSet
	ImagingFindings          TermSet
	ConservativeTherapyTried OptionalBool
	TobaccoUser              OptionalBool
}

// OptionalNumber is a float64 with an explicit presence flag.
type OptionalNumber struct {
	Value float64
	Valid bool
}

// Number returns a present OptionalNumber.
func Number(v float64) OptionalNumber { return OptionalNumber{Value: v, Valid: true} }

// OptionalString is a string with an explicit presence flag.
type OptionalString struct {
	Value string
	Valid bool
}

// String returns a present OptionalString.
func String(v string) OptionalString { return OptionalString{Value: v, Valid: true} }

// OptionalBool is a bool with an explicit presence flag.
type OptionalBool struct {
	Value bool
	Valid bool
}

// Bool returns a present OptionalBool.
func Bool(v bool) OptionalBool { return OptionalBool{Value: v, Valid: true} }

// CodeSet is a set of canonical clinical codes: uppercase with separators
// stripped, deduplicated, sorted. A nil CodeSet means the field was absent
// from the payload; an empty non-nil set means present and empty.
type CodeSet []string

// Contains reports set membership. Callers canonicalize the needle first;
// the set itself is already canonical.
func (s CodeSet) Contains(code string) bool {
	i := sort.SearchStrings(s, code)
	return i < len(s) && s[i] == code
}

// TermSet is a set of canonical clinical terms: lowercased, trimmed,
// deduplicated, sorted. Nil means absent, same as CodeSet.
type TermSet []string

// Contains reports set membership over canonical terms.
func (s TermSet) Contains(term string) bool {
	i := sort.SearchStrings(s, term)
	return i < len(s) && s[i] == term
}
