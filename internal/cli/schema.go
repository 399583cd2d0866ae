package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lacquerai/cortex/internal/report"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Output the JSON schema of the diagnostic report",
	Long: `Output the JSON schema describing the report printed by
'cortex diagnose --format json' and returned by the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := report.Schema()
		if err != nil {
			return fmt.Errorf("generate report schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
