package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stratamed/policymatch/internal/types"
)

func TestDefaultLexiconCoversAllCategories(t *testing.T) {
	lex := DefaultLexicon()
	for _, cat := range types.Categories {
		if len(lex.Categories[string(cat)]) == 0 {
			t.Errorf("default lexicon has no phrases for %s", cat)
		}
	}
}

func TestLoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := `categories:
  EXCLUSION:
    - not covered
  ELIGIBILITY:
    - eligible
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon() error = %v, want nil", err)
	}
	if len(lex.Categories["EXCLUSION"]) != 1 || lex.Categories["EXCLUSION"][0] != "not covered" {
		t.Errorf("EXCLUSION phrases = %v, want [not covered]", lex.Categories["EXCLUSION"])
	}
}

func TestLoadLexiconErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "categories: ["},
		{"unknown category", "categories:\n  SOMETHING:\n    - phrase\n"},
		{"empty phrase", "categories:\n  EXCLUSION:\n    - \"\"\n"},
		{"no categories", "categories: {}\n"},
		{"no phrases", "categories:\n  EXCLUSION: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadLexicon(path); err == nil {
				t.Errorf("LoadLexicon(%s) error = nil, want error", tt.name)
			}
		})
	}

	if _, err := LoadLexicon(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadLexicon(missing file) error = nil, want error")
	}
}
