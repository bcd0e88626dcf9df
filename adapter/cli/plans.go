package cli

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List plans and their monthly limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := domain.Catalog()
		if JSONOutput() {
			return PrintJSON(cmd.OutOrStdout(), catalog)
		}

		out := cmd.OutOrStdout()
		for _, info := range catalog {
			fmt.Fprintf(out, "%-8s $%d/month  stems: %s\n", info.Plan, info.MonthlyPriceUSD, yesNo(info.StemExportAllowed))
			for _, kind := range domain.EventKinds() {
				fmt.Fprintf(out, "  %-14s %g\n", kind, info.Limits[kind])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
