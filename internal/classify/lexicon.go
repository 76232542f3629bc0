package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratamed/policymatch/internal/types"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon is the per-category phrase vocabulary. Keys are category names
// (ELIGIBILITY, MEDICAL_NECESSITY, EXCLUSION, DOCUMENTATION); matching is
// case-insensitive on word boundaries.
type Lexicon struct {
	Categories map[string][]string `yaml:"categories"`
}

// DefaultLexicon returns the compiled-in vocabulary.
// Panics if the embedded file is invalid; that is a build defect, not a
// runtime condition.
func DefaultLexicon() *Lexicon {
	lex, err := parseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("classify: embedded lexicon invalid: %v", err))
	}
	return lex
}

// LoadLexicon reads a YAML vocabulary from disk.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lex, err := parseLexicon(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

func parseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, err
	}
	if err := lex.validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// validate rejects unknown category names and empty phrases. A typoed
// category in a lexicon file must fail loudly, not silently match nothing.
func (l *Lexicon) validate() error {
	if len(l.Categories) == 0 {
		return fmt.Errorf("lexicon has no categories")
	}
	total := 0
	for name, phrases := range l.Categories {
		if _, err := types.ParseCategory(name); err != nil {
			return fmt.Errorf("unknown category %q", name)
		}
		for _, p := range phrases {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("category %s holds an empty phrase", name)
			}
		}
		total += len(phrases)
	}
	if total == 0 {
		return fmt.Errorf("lexicon has no phrases")
	}
	return nil
}
