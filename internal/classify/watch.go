package classify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval collapses editor write bursts into one reload.
const DefaultDebounceInterval = 200 * time.Millisecond

// LexiconWatcher reloads a classifier's vocabulary when the lexicon file
// changes on disk. A file that fails to load or validate keeps the
// previous vocabulary active.
type LexiconWatcher struct {
	path       string
	classifier *Classifier
	logger     *slog.Logger
	debounce   time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewLexiconWatcher watches path and swaps reloaded vocabularies into c.
func NewLexiconWatcher(path string, c *Classifier, logger *slog.Logger) *LexiconWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexiconWatcher{
		path:       path,
		classifier: c,
		logger:     logger.With("component", "lexicon-watcher"),
		debounce:   DefaultDebounceInterval,
	}
}

// Watch blocks until ctx is cancelled, reloading after each debounced
// change to the watched file. The parent directory is watched rather than
// the file itself, so editors that save by rename keep working.
func (w *LexiconWatcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("lexicon watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("lexicon watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("lexicon watcher error", "error", err)
		}
	}
}

func (w *LexiconWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Base(event.Name) == filepath.Base(w.path)
}

// schedule arms the debounce timer, pushing the reload back if a change
// is already pending.
func (w *LexiconWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *LexiconWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *LexiconWatcher) reload() {
	lex, err := LoadLexicon(w.path)
	if err != nil {
		w.logger.Warn("lexicon reload failed, keeping previous vocabulary",
			"path", w.path,
			"error", err,
		)
		return
	}
	if err := w.classifier.SetLexicon(lex); err != nil {
		w.logger.Warn("lexicon rejected, keeping previous vocabulary",
			"path", w.path,
			"error", err,
		)
		return
	}
	w.logger.Info("lexicon reloaded", "path", w.path, "categories", len(lex.Categories))
}
