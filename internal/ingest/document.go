package ingest

import (
	"regexp"
	"strings"

	"github.com/stratamed/policymatch/internal/types"
)

// Header metadata patterns. Payers format their headers inconsistently, so
// each field accepts a few spellings; a field that never appears stays empty.
// All values are provenance, recorded verbatim.
var (
	payerPattern     = regexp.MustCompile(`(?im)^[ \t]*(?:payer|plan|insurer|carrier)[ \t]*:[ \t]*(.+?)[ \t]*$`)
	policyIDPattern  = regexp.MustCompile(`(?im)^[ \t]*policy[ \t]*(?:number|no\.?|id)?[ \t]*:[ \t]*([A-Za-z0-9._-]+)[ \t]*$`)
	titlePattern     = regexp.MustCompile(`(?im)^[ \t]*(?:policy[ \t]+title|title|subject)[ \t]*:[ \t]*(.+?)[ \t]*$`)
	effectivePattern = regexp.MustCompile(`(?im)^[ \t]*effective[ \t]*(?:date)?[ \t]*:[ \t]*(.+?)[ \t]*$`)
)

// criteriaHeading marks the start of the clause section worth splitting.
// Accepts an optional roman or arabic section number and the common heading
// variants ("Criteria", "Coverage Criteria", "Medical Necessity Criteria").
var criteriaHeading = regexp.MustCompile(`(?im)^[ \t]*(?:[IVX0-9]+[.)][ \t]+)?(?:coverage|clinical|policy|medical[ \t]+necessity)?[ \t]*criteria[ \t]*:?[ \t]*$`)

// terminatorHeading marks sections after the criteria that carry no clauses.
var terminatorHeading = regexp.MustCompile(`(?im)^[ \t]*(?:[IVX0-9]+[.)][ \t]+)?(?:coding|references|background|appendix|revision[ \t]+history|description[ \t]+of[ \t]+services?)[ \t]*:?[ \t]*$`)

const maxTitleLength = 120

// parseMetadata reads the header fields out of the full document text. The
// id and timestamp are filled by the pipeline.
func parseMetadata(text, sourcePath string) types.PolicyDocument {
	doc := types.PolicyDocument{SourcePath: sourcePath}
	if m := payerPattern.FindStringSubmatch(text); m != nil {
		doc.Payer = m[1]
	}
	if m := policyIDPattern.FindStringSubmatch(text); m != nil {
		doc.PolicyID = m[1]
	}
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		doc.Title = m[1]
	} else {
		doc.Title = fallbackTitle(text)
	}
	if m := effectivePattern.FindStringSubmatch(text); m != nil {
		doc.EffectiveDate = m[1]
	}
	return doc
}

// fallbackTitle is the first non-empty line, truncated. Policy documents
// without an explicit title header usually open with one.
func fallbackTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > maxTitleLength {
			return string(runes[:maxTitleLength])
		}
		return line
	}
	return ""
}

// sliceCriteria narrows the text to the criteria section when one is marked.
// Without a recognizable heading the whole document is returned; the splitter
// and classifier tolerate surrounding prose.
func sliceCriteria(text string) string {
	loc := criteriaHeading.FindStringIndex(text)
	if loc == nil {
		return text
	}
	rest := text[loc[1]:]
	if end := terminatorHeading.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	return rest
}
