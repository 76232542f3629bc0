package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/classify"
	"github.com/stratamed/policymatch/internal/core/config"
	"github.com/stratamed/policymatch/internal/extract"
	"github.com/stratamed/policymatch/internal/llm"
	"github.com/stratamed/policymatch/internal/registry"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "policymatch",
	Short: "PolicyMatch prior authorization decision engine",
	Long:  `PolicyMatch turns payer policy documents into reviewable coverage rules and evaluates prior authorization cases against them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from the root flags. Logs go to
// stderr so stdout stays clean for command output.
func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loadConfig loads file and environment configuration, then applies the
// root flag overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Registry.DBURL = dbURL
	}
	return cfg, nil
}

// openRegistry selects the store from the configuration and replays it into
// a registry. An empty db_url runs on the in-memory store, which suits
// one-shot commands; anything durable needs sqlite:// or postgres://.
// The caller closes the returned store.
func openRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*registry.Registry, registry.Store, error) {
	var store registry.Store
	if cfg.Registry.DBURL == "" {
		logger.Info("no database configured, using in-memory store")
		store = registry.NewMemStore()
	} else {
		sqlStore, err := registry.OpenSQLStore(cfg.Registry.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = sqlStore
	}

	reg, err := registry.New(ctx, store, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return reg, store, nil
}

// newClassifier builds the chunk classifier, preferring a configured
// lexicon file over the embedded vocabulary.
func newClassifier(cfg *config.Config) (*classify.Classifier, error) {
	lex := classify.DefaultLexicon()
	if cfg.Classifier.LexiconPath != "" {
		loaded, err := classify.LoadLexicon(cfg.Classifier.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load lexicon: %w", err)
		}
		lex = loaded
	}
	return classify.New(lex)
}

// newExtractor builds the draft extractor for the configured backend. The
// llm backend also returns its completions client so other components can
// share it; it is nil for every other backend, as is the extractor for
// the none backend.
func newExtractor(cfg *config.Config, logger *slog.Logger) (extract.Extractor, *llm.Client, error) {
	switch cfg.Extract.Backend {
	case config.ExtractBackendHeuristic:
		return extract.NewHeuristic(), nil, nil
	case config.ExtractBackendLLM:
		client, err := llm.NewClient(llm.Config{
			BaseURL: cfg.Extract.BaseURL,
			Model:   cfg.Extract.Model,
			Timeout: cfg.Extract.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return extract.NewLLM(client, logger), client, nil
	case config.ExtractBackendNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown extract backend %q", cfg.Extract.Backend)
	}
}
