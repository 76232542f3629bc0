package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratamed/policymatch/internal/core/auth"
)

var keysCount int

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage service API keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate API keys for the PM_API_KEY environment variables",
	RunE:  runKeysGenerate,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysGenerateCmd.Flags().IntVarP(&keysCount, "count", "n", 1, "number of keys to generate")
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	if keysCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	for i := 0; i < keysCount; i++ {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
	}
	return nil
}
