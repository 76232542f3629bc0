package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/engine"
	"github.com/stratamed/policymatch/internal/patient"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

var evaluateCaseID string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <patient.json>",
	Short: "Evaluate a patient context against the active rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateCaseID, "case-id", "", "case identifier recorded on the decision (defaults to a generated id)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read patient file: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse patient file: %w", err)
	}

	pc, err := patient.Normalize(raw)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	active, err := reg.List(ctx, registry.Filter{
		Statuses: []types.RuleStatus{types.StatusApproved, types.StatusIndexed},
	})
	if err != nil {
		return err
	}

	decision, err := engine.New().EvaluateCase(active, pc)
	if err != nil {
		return err
	}
	if evaluateCaseID != "" {
		decision.CaseID = types.CaseID(evaluateCaseID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}
