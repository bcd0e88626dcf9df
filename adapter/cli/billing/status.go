package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/spf13/cobra"
)

var statusUserID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's subscription status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Status == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing status requires database connection.")
			return nil
		}
		if statusUserID == "" {
			return errors.New("--user is required")
		}

		view, err := app.Status.PlanInfo(cmd.Context(), statusUserID)
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), view)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Effective plan: %s\n", view.Plan)
		if view.Status == "none" {
			fmt.Fprintln(out, "No subscription found.")
			return nil
		}
		fmt.Fprintf(out, "Subscription: %s (%s)\n", view.StoredPlan, view.Status)
		if view.CurrentPeriodEnd != nil {
			fmt.Fprintf(out, "Period ends: %s\n", view.CurrentPeriodEnd.Local().Format(time.RFC1123))
		}
		if view.Provider != "" {
			fmt.Fprintf(out, "Provider: %s\n", view.Provider)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUserID, "user", "", "user id")
}
