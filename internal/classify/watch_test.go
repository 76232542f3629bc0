package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stratamed/policymatch/internal/types"
)

const exclusionZebra = "categories:\n  EXCLUSION:\n    - zebra\n"
const eligibilityZebra = "categories:\n  ELIGIBILITY:\n    - zebra\n"

func writeLexicon(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestReloadSwapsVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	writeLexicon(t, path, exclusionZebra)

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(lex)
	if err != nil {
		t.Fatal(err)
	}
	w := NewLexiconWatcher(path, c, nil)

	if got := c.Classify("zebra").Category; got != types.CategoryExclusion {
		t.Fatalf("initial Classify(zebra) = %s, want EXCLUSION", got)
	}

	writeLexicon(t, path, eligibilityZebra)
	w.reload()
	if got := c.Classify("zebra").Category; got != types.CategoryEligibility {
		t.Errorf("after reload Classify(zebra) = %s, want ELIGIBILITY", got)
	}
}

func TestReloadKeepsPreviousOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	writeLexicon(t, path, eligibilityZebra)

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(lex)
	if err != nil {
		t.Fatal(err)
	}
	w := NewLexiconWatcher(path, c, nil)

	writeLexicon(t, path, "categories: [")
	w.reload()
	if got := c.Classify("zebra").Category; got != types.CategoryEligibility {
		t.Errorf("after broken reload Classify(zebra) = %s, want previous ELIGIBILITY", got)
	}

	writeLexicon(t, path, "categories:\n  TYPO:\n    - zebra\n")
	w.reload()
	if got := c.Classify("zebra").Category; got != types.CategoryEligibility {
		t.Errorf("after invalid reload Classify(zebra) = %s, want previous ELIGIBILITY", got)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	writeLexicon(t, path, exclusionZebra)

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(lex)
	if err != nil {
		t.Fatal(err)
	}
	w := NewLexiconWatcher(path, c, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register before the write.
	time.Sleep(100 * time.Millisecond)

	writeLexicon(t, path, eligibilityZebra)

	swapped := waitFor(2*time.Second, func() bool {
		return c.Classify("zebra").Category == types.CategoryEligibility
	})
	if !swapped {
		t.Error("vocabulary not reloaded after file change")
	}

	// An unrelated file in the same directory must not disturb anything.
	writeLexicon(t, filepath.Join(dir, "notes.yaml"), "categories: [")
	time.Sleep(150 * time.Millisecond)
	if got := c.Classify("zebra").Category; got != types.CategoryEligibility {
		t.Errorf("after unrelated write Classify(zebra) = %s, want ELIGIBILITY", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch() did not return after cancellation")
	}
}
