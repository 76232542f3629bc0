package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatRuleID(t *testing.T) {
	tests := []struct {
		name string
		cat  Category
		seq  int
		want RuleID
	}{
		{"eligibility first", CategoryEligibility, 1, "R-EL-01"},
		{"necessity double digit", CategoryMedicalNecessity, 12, "R-MN-12"},
		{"exclusion", CategoryExclusion, 3, "R-EX-03"},
		{"documentation", CategoryDocumentation, 7, "R-DOC-07"},
		{"padding widens past 99", CategoryEligibility, 104, "R-EL-104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRuleID(tt.cat, tt.seq); got != tt.want {
				t.Errorf("FormatRuleID(%v, %d) = %v, want %v", tt.cat, tt.seq, got, tt.want)
			}
		})
	}
}

func TestSplitRuleID(t *testing.T) {
	tests := []struct {
		name    string
		id      RuleID
		wantCat Category
		wantSeq int
		wantErr bool
	}{
		{"round trip eligibility", "R-EL-01", CategoryEligibility, 1, false},
		{"round trip documentation", "R-DOC-42", CategoryDocumentation, 42, false},
		{"unpadded sequence accepted", "R-EX-7", CategoryExclusion, 7, false},
		{"missing prefix", "EL-01", "", 0, true},
		{"unknown category prefix", "R-ZZ-01", "", 0, true},
		{"zero sequence", "R-EL-00", "", 0, true},
		{"non-numeric sequence", "R-EL-xx", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, seq, err := SplitRuleID(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SplitRuleID(%q) error = nil, want error", tt.id)
				}
				if !errors.Is(err, ErrInvalidRuleID) {
					t.Errorf("SplitRuleID(%q) error = %v, want ErrInvalidRuleID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitRuleID(%q) error = %v, want nil", tt.id, err)
			}
			if cat != tt.wantCat || seq != tt.wantSeq {
				t.Errorf("SplitRuleID(%q) = (%v, %d), want (%v, %d)", tt.id, cat, seq, tt.wantCat, tt.wantSeq)
			}
		})
	}
}

func TestNewIDsAreUUIDv7(t *testing.T) {
	doc := NewDocumentID()
	if _, err := ParseDocumentID(string(doc)); err != nil {
		t.Errorf("ParseDocumentID(%q) error = %v, want nil", doc, err)
	}

	chunk := NewChunkID()
	if _, err := ParseChunkID(string(chunk)); err != nil {
		t.Errorf("ParseChunkID(%q) error = %v, want nil", chunk, err)
	}

	if _, err := ParseChunkID("not-a-uuid"); err == nil {
		t.Error("ParseChunkID(not-a-uuid) error = nil, want error")
	}
}

func TestCaseIDTime(t *testing.T) {
	before := time.Now().Add(-time.Minute)
	id := NewCaseID()
	after := time.Now().Add(time.Minute)

	ts := CaseIDTime(id)
	if ts.IsZero() {
		t.Fatalf("CaseIDTime(%q) = zero time, want embedded timestamp", id)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("CaseIDTime(%q) = %v, want within [%v, %v]", id, ts, before, after)
	}

	if got := CaseIDTime(CaseID("garbage")); !got.IsZero() {
		t.Errorf("CaseIDTime(garbage) = %v, want zero time", got)
	}
}

func TestCodeSetContains(t *testing.T) {
	set := CodeSet{"E6601", "M1711", "M1712"}

	tests := []struct {
		code string
		want bool
	}{
		{"M1711", true},
		{"E6601", true},
		{"M17.11", false},
		{"Z0000", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := set.Contains(tt.code); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}

	var empty CodeSet
	if empty.Contains("M1711") {
		t.Error("nil set Contains() = true, want false")
	}
}

func TestCategoryParse(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = (%v, %v), want (%v, nil)", c, got, err, c)
		}
		if CategoryPrefix(c) == "" {
			t.Errorf("CategoryPrefix(%v) = empty, want prefix", c)
		}
	}

	if _, err := ParseCategory("eligibility"); err == nil {
		t.Error("ParseCategory(lowercase) error = nil, want error")
	}
	if _, err := ParseCategory(""); err == nil {
		t.Error("ParseCategory(empty) error = nil, want error")
	}
	if !strings.HasPrefix(string(FormatRuleID(CategoryEligibility, 1)), "R-") {
		t.Error("FormatRuleID missing R- prefix")
	}
}
