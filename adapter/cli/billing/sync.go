package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var (
	syncProvider  string
	syncEventPath string
	syncUserID    string
	syncPlan      string
	syncStatus    string
	syncPeriodEnd string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write a subscription record",
	Long: `Write a subscription record from a provider event file or from flags.

Examples:
  cadence billing sync --provider stripe --event ./event.json
  cadence billing sync --user 2b6f0cc9 --plan pro --status active --period-end 2026-12-01T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Sync == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing sync requires database connection.")
			return nil
		}

		var in *billingApp.SubscriptionUpsert
		var err error
		if syncProvider != "" {
			in, err = upsertFromEvent(app, syncProvider, syncEventPath)
		} else {
			in, err = upsertFromFlags()
		}
		if err != nil {
			return err
		}
		if in == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Event ignored.")
			return nil
		}

		sub, err := app.Sync.Upsert(cmd.Context(), *in)
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd.OutOrStdout(), map[string]any{
				"user_id":            sub.UserID,
				"plan":               sub.Plan,
				"status":             sub.Status,
				"current_period_end": sub.CurrentPeriodEnd,
				"provider":           sub.Provider,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %s: %s (%s)\n", sub.UserID, sub.Plan, sub.Status)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncProvider, "provider", "", "provider name (stripe, shopify)")
	syncCmd.Flags().StringVar(&syncEventPath, "event", "", "path to provider event JSON")
	syncCmd.Flags().StringVar(&syncUserID, "user", "", "user id")
	syncCmd.Flags().StringVar(&syncPlan, "plan", "", "plan (free, starter, pro)")
	syncCmd.Flags().StringVar(&syncStatus, "status", string(domain.SubscriptionActive), "subscription status")
	syncCmd.Flags().StringVar(&syncPeriodEnd, "period-end", "", "RFC 3339 end of the paid period")
}

func upsertFromEvent(app *cli.App, providerName, path string) (*billingApp.SubscriptionUpsert, error) {
	if app.Providers == nil {
		return nil, errors.New("no billing providers configured")
	}
	if path == "" {
		return nil, errors.New("--event is required with --provider")
	}
	translator, err := app.Providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	payload, err := security.ReadPayloadFile(path, security.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}
	return translator.Translate(payload, time.Now())
}

func upsertFromFlags() (*billingApp.SubscriptionUpsert, error) {
	if syncUserID == "" || syncPlan == "" {
		return nil, errors.New("--user and --plan are required without --provider")
	}
	in := &billingApp.SubscriptionUpsert{
		UserID:   syncUserID,
		Plan:     syncPlan,
		Status:   syncStatus,
		Provider: "manual",
	}
	if syncPeriodEnd != "" {
		end, err := time.Parse(time.RFC3339, syncPeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid --period-end: %w", err)
		}
		in.CurrentPeriodEnd = &end
	}
	return in, nil
}
