package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/classify"
	"github.com/stratamed/policymatch/internal/core/api"
	"github.com/stratamed/policymatch/internal/core/auth"
	"github.com/stratamed/policymatch/internal/core/server"
	"github.com/stratamed/policymatch/internal/engine"
	"github.com/stratamed/policymatch/internal/index"
	"github.com/stratamed/policymatch/internal/ingest"
	"github.com/stratamed/policymatch/internal/llm"
	"github.com/stratamed/policymatch/internal/telemetry"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PolicyMatch HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP listen host")
	serveCmd.Flags().Int("port", 0, "HTTP listen port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}

	reg, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cls, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	ext, llmClient, err := newExtractor(cfg, logger)
	if err != nil {
		return err
	}
	var explainer *llm.Explainer
	if llmClient != nil {
		explainer = llm.NewExplainer(llmClient, logger)
	}

	metrics := telemetry.New()
	pipe := ingest.NewPipeline(reg, cls, ext, metrics, logger)

	keys, err := auth.LoadKeysFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}
	authenticator, err := auth.NewAuthenticator(keys, logger)
	if err != nil {
		return err
	}

	service, err := api.NewService(reg, engine.New(), pipe, explainer, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	httpServer, err := server.NewHTTPServer(&cfg.Server, service, authenticator, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.Classifier.WatchLexicon && cfg.Classifier.LexiconPath != "" {
		watcher := classify.NewLexiconWatcher(cfg.Classifier.LexiconPath, cls, logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("lexicon watcher failed", "error", err)
			}
		}()
	}

	if cfg.Index.Enabled {
		var indexer index.Indexer
		if cfg.Index.BaseURL == "" {
			indexer = index.NewMemoryIndexer()
		} else {
			indexer = index.NewHTTPIndexer(cfg.Index.BaseURL, 0)
		}
		syncJob := index.NewSyncJob(reg, indexer, cfg.Index.Schedule, logger)
		if err := syncJob.Start(ctx); err != nil {
			return err
		}
		defer syncJob.Stop()
	}

	logger.Info("starting policymatch",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)
	return httpServer.Start(ctx)
}
