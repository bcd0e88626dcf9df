package cli

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending schema migrations to the configured database.

Migrations also run on every start; this command exists for deploy
pipelines that migrate before rolling out new binaries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		if a == nil || a.Container == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Running migrations requires database connection.")
			return nil
		}

		factory := app.NewRepositoryFactory(a.Container.DBConn)
		if err := factory.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", factory.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
