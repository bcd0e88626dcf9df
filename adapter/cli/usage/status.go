package usage

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/spf13/cobra"
)

var statusUserID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show month-to-date usage for a user",
	Long: `Show the effective plan and month-to-date usage of every kind.

Examples:
  cadence usage status --user 2b6f0cc9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Status == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Usage status requires database connection.")
			return nil
		}
		if statusUserID == "" {
			return errors.New("--user is required")
		}

		status, err := app.Status.UsageStatus(cmd.Context(), statusUserID)
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), status)
		}

		out := cmd.OutOrStdout()
		active := "inactive"
		if status.Active {
			active = "active"
		}
		fmt.Fprintf(out, "User: %s\n", status.UserID)
		fmt.Fprintf(out, "Plan: %s (%s)\n", status.Plan, active)
		for _, kind := range domain.EventKinds() {
			k := status.Kinds[kind]
			fmt.Fprintf(out, "  %-14s %g / %g (remaining %g)\n", kind, k.Used, k.Limit, k.Remaining)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUserID, "user", "", "user id")
}
