package usage

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	enforceUserID    string
	enforceKind      string
	enforceQuantity  float64
	enforceRequestID string
)

// ErrNotEntitled is returned when the gate rejects the charge, so the
// command exits non-zero.
var ErrNotEntitled = errors.New("upgrade required")

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Charge usage for a user through the plan gate",
	Long: `Check the user's quota and record the usage when it fits.

Examples:
  cadence usage enforce --user 2b6f0cc9 --kind generation
  cadence usage enforce --user 2b6f0cc9 --kind audio_minutes --qty 2.5 --request-id render-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Gate == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Usage enforcement requires database connection.")
			return nil
		}
		if enforceUserID == "" {
			return errors.New("--user is required")
		}
		kind, err := domain.ParseEventKind(enforceKind)
		if err != nil {
			return err
		}

		req := billingApp.EnforceRequest{
			UserID:    enforceUserID,
			Kind:      kind,
			RequestID: enforceRequestID,
		}
		if cmd.Flags().Changed("qty") {
			qty := enforceQuantity
			req.Quantity = &qty
		}

		decision, err := app.Gate.Enforce(cmd.Context(), req)
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			if err := cli.PrintJSON(cmd.OutOrStdout(), decision); err != nil {
				return err
			}
		} else {
			printDecision(cmd, decision)
		}
		if !decision.OK {
			return ErrNotEntitled
		}
		return nil
	},
}

func init() {
	enforceCmd.Flags().StringVar(&enforceUserID, "user", "", "user id")
	enforceCmd.Flags().StringVar(&enforceKind, "kind", "", "generation, export or audio_minutes")
	enforceCmd.Flags().Float64Var(&enforceQuantity, "qty", 1, "quantity (audio_minutes only)")
	enforceCmd.Flags().StringVar(&enforceRequestID, "request-id", "", "idempotency key")
}

func printDecision(cmd *cobra.Command, d domain.Decision) {
	out := cmd.OutOrStdout()
	switch {
	case d.Replayed:
		fmt.Fprintf(out, "Already charged: %s on %s\n", d.Kind, d.Plan)
	case d.OK:
		fmt.Fprintf(out, "Allowed: %s on %s\n", d.Kind, d.Plan)
	default:
		fmt.Fprintf(out, "Upgrade required: %s on %s\n", d.Kind, d.Plan)
	}
	fmt.Fprintf(out, "Used: %g / %g (remaining %g)\n", d.Used, d.Limit, d.Remaining)
}
