package usage

import "github.com/spf13/cobra"

// Cmd is the usage command group.
var Cmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and record metered usage",
	Long:  `Show month-to-date usage per kind and charge usage through the plan gate.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(enforceCmd)
}
