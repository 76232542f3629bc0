package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentID identifies an ingested policy document. UUIDv7 string form;
// time-ordered IDs ensure sequential inserts cluster in B-tree pages.
type DocumentID string

// ChunkID identifies a classified clause chunk. UUIDv7 string form.
type ChunkID string

// CaseID identifies one authorization decision. UUIDv7 string form; the
// embedded timestamp doubles as a coarse audit time for the case.
type CaseID string

// RuleID identifies a rule across all its revisions. Unlike the UUID kinds,
// rule ids are human-facing: "R-" + category prefix + sequence, for example
// R-EL-01. The registry assigns them and never reuses one, even after
// rejection.
type RuleID string

// NewDocumentID generates a UUIDv7 document identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.Must(uuid.NewV7()).String())
}

// NewChunkID generates a UUIDv7 chunk identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewChunkID() ChunkID {
	return ChunkID(uuid.Must(uuid.NewV7()).String())
}

// NewCaseID generates a UUIDv7 case identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewCaseID() CaseID {
	return CaseID(uuid.Must(uuid.NewV7()).String())
}

// ParseDocumentID validates and converts a string to DocumentID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseDocumentID(s string) (DocumentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}

// ParseChunkID validates and converts a string to ChunkID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseChunkID(s string) (ChunkID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ChunkID(s), nil
}

// CaseIDTime extracts the timestamp embedded in a UUIDv7 case ID.
// Enables time-based audit queries without a database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func CaseIDTime(id CaseID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// categoryPrefixes maps each category to its rule id prefix.
var categoryPrefixes = map[Category]string{
	CategoryEligibility:      "EL",
	CategoryMedicalNecessity: "MN",
	CategoryExclusion:        "EX",
	CategoryDocumentation:    "DOC",
}

// CategoryPrefix returns the rule id prefix for a category, "EL" for
// ELIGIBILITY. Unknown categories return "".
func CategoryPrefix(c Category) string {
	return categoryPrefixes[c]
}

// FormatRuleID builds the canonical rule id for a category and sequence
// number. Sequences are 1-based and zero-padded to two digits; the padding
// widens naturally past 99.
func FormatRuleID(c Category, seq int) RuleID {
	return RuleID(fmt.Sprintf("R-%s-%02d", categoryPrefixes[c], seq))
}

// SplitRuleID parses a rule id back into its category and sequence number.
// The registry uses this during replay to rebuild per-category counters.
func SplitRuleID(id RuleID) (Category, int, error) {
	parts := strings.Split(string(id), "-")
	if len(parts) != 3 || parts[0] != "R" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRuleID, id)
	}
	var cat Category
	for c, p := range categoryPrefixes {
		if p == parts[1] {
			cat = c
			break
		}
	}
	if cat == "" {
		return "", 0, fmt.Errorf("%w: unknown prefix in %q", ErrInvalidRuleID, id)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: bad sequence in %q", ErrInvalidRuleID, id)
	}
	return cat, seq, nil
}
