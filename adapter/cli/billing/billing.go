package billing

import "github.com/spf13/cobra"

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Manage subscription records",
	Long:  `Inspect subscription records and sync them from billing providers.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(syncCmd)
	Cmd.AddCommand(cancelCmd)
}
