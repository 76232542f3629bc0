package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

var (
	rulesStatusFilter   []string
	rulesCategoryFilter []string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rules in the registry",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules, optionally filtered by status or category",
	RunE:  runRulesList,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <rule-id>",
	Short: "Show the current revision of a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

var rulesHistoryCmd = &cobra.Command{
	Use:   "history <rule-id>",
	Short: "Show every revision of a rule in version order",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesHistory,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesHistoryCmd)
	rulesListCmd.Flags().StringSliceVar(&rulesStatusFilter, "status", nil, "filter by status (draft, approved, rejected, indexed)")
	rulesListCmd.Flags().StringSliceVar(&rulesCategoryFilter, "category", nil, "filter by category (eligibility, medical_necessity, exclusion, documentation)")
}

func parseListFilter() (registry.Filter, error) {
	var f registry.Filter
	for _, raw := range rulesStatusFilter {
		status, err := types.ParseRuleStatus(strings.ToUpper(raw))
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, status)
	}
	for _, raw := range rulesCategoryFilter {
		category, err := types.ParseCategory(strings.ToUpper(raw))
		if err != nil {
			return f, err
		}
		f.Categories = append(f.Categories, category)
	}
	return f, nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	filter, err := parseListFilter()
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

	rules, err := reg.List(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tSTATUS\tVER\tCONF\tEXPRESSION")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n",
			r.ID, r.Category, r.Status, r.Version, r.Confidence, r.Expression)
	}
	return w.Flush()
}

func runRulesShow(cmd *cobra.Command, args []string) error {
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

	rule, err := reg.Get(ctx, types.RuleID(args[0]))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", rule.ID)
	fmt.Fprintf(w, "Category\t%s\n", rule.Category)
	fmt.Fprintf(w, "Status\t%s\n", rule.Status)
	fmt.Fprintf(w, "Version\t%d\n", rule.Version)
	fmt.Fprintf(w, "Confidence\t%.2f\n", rule.Confidence)
	fmt.Fprintf(w, "Expression\t%s\n", rule.Expression)
	fmt.Fprintf(w, "Source chunk\t%s\n", rule.SourceChunkID)
	fmt.Fprintf(w, "Created\t%s\n", rule.CreatedAt.Format(time.RFC3339))
	return w.Flush()
}

func runRulesHistory(cmd *cobra.Command, args []string) error {
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

	history, err := reg.History(ctx, types.RuleID(args[0]))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VER\tSTATUS\tCREATED\tEXPRESSION")
	for _, r := range history {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			r.Version, r.Status, r.CreatedAt.Format(time.RFC3339), r.Expression)
	}
	return w.Flush()
}
