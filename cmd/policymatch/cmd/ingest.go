package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a policy document and extract draft rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
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
	ext, _, err := newExtractor(cfg, logger)
	if err != nil {
		return err
	}

	pipe := ingest.NewPipeline(reg, cls, ext, nil, logger)
	outcome, err := pipe.RunFile(ctx, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
