package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	"github.com/spf13/cobra"
)

var cancelUserID string

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a user's subscription",
	Long: `Mark the user's subscription canceled. The user falls back to the
free plan immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Sync == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing cancel requires database connection.")
			return nil
		}
		if cancelUserID == "" {
			return errors.New("--user is required")
		}

		sub, err := app.Sync.Cancel(cmd.Context(), cancelUserID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Canceled %s (%s).\n", sub.UserID, sub.Plan)
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelUserID, "user", "", "user id")
}
