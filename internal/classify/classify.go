/*
Package classify segments normalized policy text into clauses and labels
each clause with the policy category its wording matches.

Classification is vocabulary matching, not modeling: every category owns a
phrase list (the lexicon) and the category whose phrases cover the longest
stretch of a clause wins. Exact ties resolve by consequence order, with
exclusions first, because downstream decision aggregation treats an
exclusion hit as absolute. Clauses matching no vocabulary at all are kept
as DOCUMENTATION with a low-confidence flag instead of being dropped; the
rule registry stays auditable against the full source text.

Why span coverage instead of match counts: exclusion wording usually embeds
the vocabulary of the category it negates ("not medically necessary"
contains "medically necessary"). Counting matches would score those one
each; measuring covered text lets the longer negated phrase outweigh its
embedded positive form. Overlapping matches within one category count once.
*/
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/stratamed/policymatch/internal/types"
)

// Label is the classifier's verdict for one clause.
type Label struct {
	Category      types.Category
	Confidence    float64
	LowConfidence bool
}

// precedenceOrder lists categories from highest to lowest consequence;
// span ties resolve toward the earlier entry.
var precedenceOrder = []types.Category{
	types.CategoryExclusion,
	types.CategoryMedicalNecessity,
	types.CategoryEligibility,
	types.CategoryDocumentation,
}

// lowConfidenceFloor flags labels whose winning margin over the runner-up
// category is too thin to trust without review. A clause matching two
// vocabularies equally scores exactly 0.5.
const lowConfidenceFloor = 0.55

type categoryPatterns struct {
	category types.Category
	patterns []*regexp.Regexp
}

// Classifier labels clauses against a compiled lexicon. Safe for
// concurrent use; SetLexicon swaps the vocabulary atomically.
type Classifier struct {
	mu   sync.RWMutex
	sets []categoryPatterns
}

// New compiles lex into a ready classifier.
func New(lex *Lexicon) (*Classifier, error) {
	c := &Classifier{}
	if err := c.SetLexicon(lex); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLexicon compiles lex and swaps it in. On error the previous
// vocabulary stays active.
func (c *Classifier) SetLexicon(lex *Lexicon) error {
	sets, err := compileLexicon(lex)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sets = sets
	c.mu.Unlock()
	return nil
}

func compileLexicon(lex *Lexicon) ([]categoryPatterns, error) {
	if lex == nil {
		return nil, fmt.Errorf("classify: nil lexicon")
	}
	if err := lex.validate(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var sets []categoryPatterns
	for _, cat := range precedenceOrder {
		phrases := lex.Categories[string(cat)]
		if len(phrases) == 0 {
			continue
		}
		set := categoryPatterns{category: cat}
		for _, phrase := range phrases {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(phrase)) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("classify: phrase %q: %w", phrase, err)
			}
			set.patterns = append(set.patterns, re)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Classify labels one clause. Confidence is the winning span's share
// against the runner-up category, so an unambiguous clause scores 1.0
// and a dead heat scores 0.5.
func (c *Classifier) Classify(text string) Label {
	c.mu.RLock()
	sets := c.sets
	c.mu.RUnlock()

	bestIdx, bestSpan, secondSpan := -1, 0, 0
	for i, set := range sets {
		span := matchedSpan(set.patterns, text)
		switch {
		case span > bestSpan:
			secondSpan = bestSpan
			bestIdx, bestSpan = i, span
		case span > secondSpan:
			secondSpan = span
		}
	}

	if bestIdx < 0 {
		return Label{Category: types.CategoryDocumentation, LowConfidence: true}
	}

	conf := float64(bestSpan) / float64(bestSpan+secondSpan)
	return Label{
		Category:      sets[bestIdx].category,
		Confidence:    conf,
		LowConfidence: conf < lowConfidenceFloor,
	}
}

// matchedSpan returns how much of text at least one pattern covers.
// Overlapping matches merge, so a phrase containing a shorter phrase of
// the same category does not count twice.
func matchedSpan(patterns []*regexp.Regexp, text string) int {
	var intervals [][2]int
	for _, re := range patterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			intervals = append(intervals, [2]int{m[0], m[1]})
		}
	}
	if len(intervals) == 0 {
		return 0
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i][0] != intervals[j][0] {
			return intervals[i][0] < intervals[j][0]
		}
		return intervals[i][1] < intervals[j][1]
	})

	span := 0
	start, end := intervals[0][0], intervals[0][1]
	for _, iv := range intervals[1:] {
		if iv[0] > end {
			span += end - start
			start, end = iv[0], iv[1]
			continue
		}
		if iv[1] > end {
			end = iv[1]
		}
	}
	return span + end - start
}
