package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/review"
)

var (
	reviewAuto          bool
	reviewMinConfidence float64
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review draft rules interactively or approve them in bulk",
	RunE:  runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().BoolVar(&reviewAuto, "auto", false, "approve drafts at or above the confidence threshold without a session")
	reviewCmd.Flags().Float64Var(&reviewMinConfidence, "min-confidence", 0, "confidence threshold for --auto (defaults to review.min_confidence)")
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !reviewAuto {
		// The terminal belongs to the TUI; route logs nowhere for the
		// duration of the session.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	reg, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if reviewAuto {
		threshold := cfg.Review.MinConfidence
		if cmd.Flags().Changed("min-confidence") {
			threshold = reviewMinConfidence
		}
		totals, err := review.AutoApprove(ctx, reg, threshold, logger)
		if err != nil {
			return err
		}
		fmt.Printf("approved %d, skipped %d (threshold %.2f)\n",
			totals.Approved, totals.Skipped, threshold)
		return nil
	}

	return review.Run(ctx, reg, logger)
}
