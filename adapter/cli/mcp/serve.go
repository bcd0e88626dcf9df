package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/cadence/internal/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "MCP server requires database connection.")
			return nil
		}

		err := mcpinternal.Serve(cmd.Context(), app.Config, app, cli.Logger())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
