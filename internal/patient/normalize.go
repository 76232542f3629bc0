package patient

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/stratamed/policymatch/internal/types"
)

// Normalize converts a decoded payload into a typed PatientContext.
//
// Shape rules per kind: numbers coerce from JSON numbers or numeric strings;
// strings must be strings; booleans must be JSON booleans; sets must be
// arrays of strings. Any violation fails with SchemaError naming the field,
// as does an absent required field. Keys outside the schema are ignored.
func Normalize(raw map[string]any) (*types.PatientContext, error) {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return nil, &types.SchemaError{Field: field, Reason: "required field absent"}
		}
	}

	pc := &types.PatientContext{}
	for field, kind := range FieldKinds {
		value, ok := raw[field]
		if !ok {
			continue
		}
		if err := setField(pc, field, kind, value); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func setField(pc *types.PatientContext, field string, kind FieldKind, value any) error {
	switch kind {
	case KindNumber:
		n, err := coerceNumber(field, value)
		if err != nil {
			return err
		}
		switch field {
		case "age":
			pc.Age = types.Number(n)
		case "bmi":
			pc.BMI = types.Number(n)
		}
	case KindString:
		s, ok := value.(string)
		if !ok {
			return &types.SchemaError{Field: field, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
		pc.Gender = types.String(strings.ToUpper(strings.TrimSpace(s)))
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return &types.SchemaError{Field: field, Reason: fmt.Sprintf("expected boolean, got %T", value)}
		}
		switch field {
		case "conservative_therapy_tried":
			pc.ConservativeTherapyTried = types.Bool(b)
		case "tobacco_user":
			pc.TobaccoUser = types.Bool(b)
		}
	case KindCodeSet:
		set, err := coerceSet(field, value, NormalizeCode)
		if err != nil {
			return err
		}
		switch field {
		case "diagnosis_codes":
			pc.DiagnosisCodes = types.CodeSet(set)
		case "procedure_codes":
			pc.ProcedureCodes = types.CodeSet(set)
		}
	case KindTermSet:
		set, err := coerceSet(field, value, NormalizeTerm)
		if err != nil {
			return err
		}
		switch field {
		case "prior_treatments":
			pc.PriorTreatments = types.TermSet(set)
		case "medications":
			pc.Medications = types.TermSet(set)
		case "imaging_findings":
			pc.ImagingFindings = types.TermSet(set)
		}
	}
	return nil
}

// coerceNumber accepts JSON numbers and numeric strings. Strict on strings:
// the whole trimmed value must parse, so "17 years" is rejected rather than
// silently truncated. NaN and infinities are rejected; they cannot order.
func coerceNumber(field string, value any) (float64, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &types.SchemaError{Field: field, Reason: fmt.Sprintf("non-numeric string %q", v)}
		}
		n = parsed
	default:
		return 0, &types.SchemaError{Field: field, Reason: fmt.Sprintf("expected number, got %T", value)}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &types.SchemaError{Field: field, Reason: "value is not a finite number"}
	}
	return n, nil
}

// coerceSet accepts arrays of strings, canonicalizes every entry, and
// returns a sorted deduplicated slice. The result is non-nil even when
// empty: presence and emptiness are different states.
func coerceSet(field string, value any, canon func(string) string) ([]string, error) {
	var entries []string
	switch v := value.(type) {
	case []any:
		entries = make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, &types.SchemaError{Field: field, Reason: fmt.Sprintf("entry %d: expected string, got %T", i, e)}
			}
			entries = append(entries, s)
		}
	case []string:
		entries = append(entries, v...)
	default:
		return nil, &types.SchemaError{Field: field, Reason: fmt.Sprintf("expected array of strings, got %T", value)}
	}
	if len(entries) > types.MaxSetValues {
		return nil, &types.SchemaError{Field: field, Reason: fmt.Sprintf("%d entries exceeds limit of %d", len(entries), types.MaxSetValues)}
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		c := canon(e)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeCode canonicalizes a clinical code: uppercase with the common
// separator characters stripped, so "M17.11", "m17-11" and "M17 11" all
// become "M1711". Membership needles in expressions go through the same
// function, which is what makes literal-vs-payload matching reliable.
func NormalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		switch r {
		case '.', '-', ',', ' ':
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NormalizeTerm canonicalizes a free-text clinical term: lowercased with
// runs of whitespace collapsed to single spaces.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// Lookup resolves a schema field against a context. The second return is
// false when the field was absent from the payload; the interpreter turns
// that into an indeterminate predicate. Set values come back as their
// concrete set types so callers can test membership without copying.
func Lookup(pc *types.PatientContext, field string) (any, bool) {
	switch field {
	case "age":
		if pc.Age.Valid {
			return pc.Age.Value, true
		}
	case "bmi":
		if pc.BMI.Valid {
			return pc.BMI.Value, true
		}
	case "gender":
		if pc.Gender.Valid {
			return pc.Gender.Value, true
		}
	case "diagnosis_codes":
		if pc.DiagnosisCodes != nil {
			return pc.DiagnosisCodes, true
		}
	case "procedure_codes":
		if pc.ProcedureCodes != nil {
			return pc.ProcedureCodes, true
		}
	case "prior_treatments":
		if pc.PriorTreatments != nil {
			return pc.PriorTreatments, true
		}
	case "medications":
		if pc.Medications != nil {
			return pc.Medications, true
		}
	case "imaging_findings":
		if pc.ImagingFindings != nil {
			return pc.ImagingFindings, true
		}
	case "conservative_therapy_tried":
		if pc.ConservativeTherapyTried.Valid {
			return pc.ConservativeTherapyTried.Value, true
		}
	case "tobacco_user":
		if pc.TobaccoUser.Valid {
			return pc.TobaccoUser.Value, true
		}
	}
	return nil, false
}
