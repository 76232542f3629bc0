package ingest

import (
	"strings"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantPayer     string
		wantPolicyID  string
		wantTitle     string
		wantEffective string
	}{
		{
			name: "standard header",
			text: "Policy Title: Bariatric Surgery\nPayer: Stratamed Health\nPolicy Number: CP-2024-017\nEffective Date: 2024-03-01\n\nbody",
			wantPayer:     "Stratamed Health",
			wantPolicyID:  "CP-2024-017",
			wantTitle:     "Bariatric Surgery",
			wantEffective: "2024-03-01",
		},
		{
			name: "alternate spellings",
			text: "Subject: Knee Arthroplasty\nPlan: Acme Care\nPolicy No. 88-412\nEffective: January 1, 2025",
			wantPayer:     "Acme Care",
			wantPolicyID:  "",
			wantTitle:     "Knee Arthroplasty",
			wantEffective: "January 1, 2025",
		},
		{
			name: "policy id with colon",
			text: "Policy: MED-101\nInsurer: Acme Care",
			wantPayer:    "Acme Care",
			wantPolicyID: "MED-101",
			wantTitle:    "Policy: MED-101",
		},
		{
			name:      "fallback title is first line",
			text:      "\n\nClinical Policy: Total Knee Arthroplasty\nPayer: Acme\n",
			wantPayer: "Acme",
			wantTitle: "Clinical Policy: Total Knee Arthroplasty",
		},
		{
			name: "empty document",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseMetadata(tt.text, "policy.txt")
			if doc.Payer != tt.wantPayer {
				t.Errorf("Payer = %q, want %q", doc.Payer, tt.wantPayer)
			}
			if doc.PolicyID != tt.wantPolicyID {
				t.Errorf("PolicyID = %q, want %q", doc.PolicyID, tt.wantPolicyID)
			}
			if doc.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if doc.EffectiveDate != tt.wantEffective {
				t.Errorf("EffectiveDate = %q, want %q", doc.EffectiveDate, tt.wantEffective)
			}
			if doc.SourcePath != "policy.txt" {
				t.Errorf("SourcePath = %q, want policy.txt", doc.SourcePath)
			}
		})
	}
}

func TestParseMetadataTruncatesLongFallbackTitle(t *testing.T) {
	doc := parseMetadata(strings.Repeat("x", 500), "")
	if len(doc.Title) != maxTitleLength {
		t.Errorf("fallback title length = %d, want %d", len(doc.Title), maxTitleLength)
	}
}

func TestSliceCriteria(t *testing.T) {
	text := "Clinical Policy: TKA\n\nThis policy addresses total knee arthroplasty.\n\nCoverage Criteria\n\n1. Member must be 18 years of age or older.\n2. Not covered for tobacco users.\n\nReferences\n\nHayes review 2023.\n"

	got := sliceCriteria(text)
	if strings.Contains(got, "This policy addresses") {
		t.Errorf("sliceCriteria() kept preamble prose:\n%s", got)
	}
	if strings.Contains(got, "Hayes review") {
		t.Errorf("sliceCriteria() kept the references section:\n%s", got)
	}
	for _, clause := range []string{"18 years of age", "tobacco users"} {
		if !strings.Contains(got, clause) {
			t.Errorf("sliceCriteria() lost clause %q:\n%s", clause, got)
		}
	}
}

func TestSliceCriteriaHeadingVariants(t *testing.T) {
	tests := []struct {
		name    string
		heading string
	}{
		{name: "bare", heading: "Criteria"},
		{name: "coverage", heading: "Coverage Criteria"},
		{name: "medical necessity", heading: "Medical Necessity Criteria:"},
		{name: "numbered roman", heading: "II. Clinical Criteria"},
		{name: "numbered arabic", heading: "3) Policy Criteria"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "Header prose.\n\n" + tt.heading + "\n\n1. Clause one.\n"
			got := sliceCriteria(text)
			if strings.Contains(got, "Header prose") {
				t.Errorf("sliceCriteria() with heading %q kept the header", tt.heading)
			}
			if !strings.Contains(got, "Clause one") {
				t.Errorf("sliceCriteria() with heading %q lost the clause", tt.heading)
			}
		})
	}
}

func TestSliceCriteriaWithoutHeadingKeepsAll(t *testing.T) {
	text := "1. Clause one.\n2. Clause two.\n"
	if got := sliceCriteria(text); got != text {
		t.Errorf("sliceCriteria() without heading = %q, want input unchanged", got)
	}
}
