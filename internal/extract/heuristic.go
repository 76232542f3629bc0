package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stratamed/policymatch/internal/expr"
	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Heuristic is the offline extractor: deterministic text patterns over the
 * chunk body, no network. It recognizes the clause shapes that dominate
 * prior-authorization policies (age thresholds, BMI thresholds, ICD-10 and
 * CPT code lists, conservative therapy and tobacco language) and declines
 * everything else.
 *
 * Polarity follows the chunk category. An EXCLUSION clause describes the
 * state that disqualifies, so its terms are joined with or and flag terms
 * take their disqualifying sense ("tobacco use" means tobacco_user is true).
 * Eligibility and necessity clauses describe what must hold, so terms are
 * joined with and and flags take their qualifying sense.
 */
type Heuristic struct{}

// NewHeuristic returns the pattern-based extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// agePatterns are tried in order; the first match supplies the operator and
// threshold. The permissive forms come last so explicit phrasing wins.
var agePatterns = []struct {
	re *regexp.Regexp
	op string
}{
	{regexp.MustCompile(`(?i)\b(\d+)\s+years\s+of\s+age\s+or\s+older\b`), ">="},
	{regexp.MustCompile(`(?i)\b(\d+)\s+years\s+or\s+older\b`), ">="},
	{regexp.MustCompile(`(?i)\bage\s+(\d+)\s+(?:years\s+)?or\s+older\b`), ">="},
	{regexp.MustCompile(`(?i)\bat\s+least\s+(\d+)\s+years\s+of\s+age\b`), ">="},
	{regexp.MustCompile(`(?i)\b(?:under|younger\s+than)\s+(?:age\s+)?(\d+)\b`), "<"},
	{regexp.MustCompile(`(?i)\bover\s+(?:age\s+)?(\d+)\s+years\b`), ">"},
	{regexp.MustCompile(`(?i)\bover\s+age\s+(\d+)\b`), ">"},
}

// bmiBelow must be tried before bmiAny: the general pattern defaults to a
// minimum threshold, which is the common case in bariatric criteria.
var (
	bmiBelow = regexp.MustCompile(`(?i)\b(?:bmi|body\s+mass\s+index)\b\s*(?:of\s+)?(?:less\s+than|under|below)\s+(\d+(?:\.\d+)?)`)
	bmiAny   = regexp.MustCompile(`(?i)\b(?:bmi|body\s+mass\s+index)\b[^\d]{0,40}?(\d+(?:\.\d+)?)`)
)

// icdPattern matches ICD-10 diagnosis codes. The first letter class skips U,
// which ICD-10 reserves. Case-sensitive: policies print codes uppercase, and
// matching lowercase would pull in ordinary words.
var icdPattern = regexp.MustCompile(`\b[A-TV-Z][0-9][0-9A-Z](?:\.[0-9A-Z]{1,4})?\b`)

// cptPattern matches five-digit CPT procedure codes.
var cptPattern = regexp.MustCompile(`\b\d{5}\b`)

var (
	conservativePattern = regexp.MustCompile(`(?i)\bconservative\s+(?:therapy|treatment|management|care)\b|\bnon-?operative\s+(?:treatment|management)\b|\bnon-?surgical\s+(?:treatment|management)\b`)
	tobaccoPattern      = regexp.MustCompile(`(?i)\btobacco\b|\bnicotine\b|\bsmoking\b|\bsmoke-?free\b`)
)

// Extract applies the patterns to one chunk. DOCUMENTATION chunks only ever
// yield flag terms; threshold and code patterns in documentation language
// describe what must be written down, not what must hold for the patient.
func (h *Heuristic) Extract(_ context.Context, chunk types.Chunk) (Candidate, bool, error) {
	text := chunk.Text
	exclusion := chunk.Category == types.CategoryExclusion
	documentation := chunk.Category == types.CategoryDocumentation

	var terms, reasons []string
	add := func(term, reason string) {
		terms = append(terms, term)
		reasons = append(reasons, reason)
	}

	if !documentation {
		if term, ok := ageTerm(text); ok {
			add(term, "age threshold")
		}
		if term, ok := bmiTerm(text); ok {
			add(term, "body mass index threshold")
		}
		if codes := uniqueMatches(icdPattern, text); len(codes) > 0 {
			add(membership(codes, "diagnosis_codes"), "diagnosis codes "+strings.Join(codes, ", "))
		}
		if codes := uniqueMatches(cptPattern, text); len(codes) > 0 {
			add(membership(codes, "procedure_codes"), "procedure codes "+strings.Join(codes, ", "))
		}
	}
	if conservativePattern.MatchString(text) {
		if exclusion {
			add("not conservative_therapy_tried", "conservative therapy requirement")
		} else {
			add("conservative_therapy_tried", "conservative therapy requirement")
		}
	}
	if tobaccoPattern.MatchString(text) {
		if exclusion {
			add("tobacco_user", "tobacco status")
		} else {
			add("not tobacco_user", "tobacco status")
		}
	}

	if len(terms) == 0 {
		return Candidate{}, false, nil
	}

	source := joinTerms(terms, exclusion)
	if _, err := expr.Compile(source); err != nil {
		return Candidate{}, false, fmt.Errorf("pattern extraction built invalid expression %q: %w", source, err)
	}

	confidence := 0.85
	if len(terms) > 1 {
		confidence = 0.7
	}
	return Candidate{
		Expression: source,
		Confidence: confidence,
		Rationale:  "matched " + strings.Join(reasons, "; "),
	}, true, nil
}

func ageTerm(text string) (string, bool) {
	for _, p := range agePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return fmt.Sprintf("age %s %s", p.op, m[1]), true
		}
	}
	return "", false
}

func bmiTerm(text string) (string, bool) {
	if m := bmiBelow.FindStringSubmatch(text); m != nil {
		return "bmi < " + m[1], true
	}
	if m := bmiAny.FindStringSubmatch(text); m != nil {
		return "bmi >= " + m[1], true
	}
	return "", false
}

// uniqueMatches returns the pattern's matches in first-seen order with
// duplicates removed.
func uniqueMatches(re *regexp.Regexp, text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// membership builds an or-chain of set membership tests. A policy listing
// several codes qualifies a patient holding any one of them.
func membership(codes []string, field string) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("'%s' in %s", c, field)
	}
	return strings.Join(parts, " or ")
}

// joinTerms combines the collected terms. Exclusion terms are disjunctive:
// any listed condition disqualifies on its own. Everything else is
// conjunctive, with or-groups parenthesized to keep precedence explicit.
func joinTerms(terms []string, exclusion bool) string {
	if len(terms) == 1 {
		return terms[0]
	}
	if exclusion {
		return strings.Join(terms, " or ")
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		if strings.Contains(t, " or ") {
			parts[i] = "(" + t + ")"
		} else {
			parts[i] = t
		}
	}
	return strings.Join(parts, " and ")
}
