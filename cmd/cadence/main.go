package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	cliBilling "github.com/felixgeelhaar/cadence/adapter/cli/billing"
	"github.com/felixgeelhaar/cadence/adapter/cli/mcp"
	"github.com/felixgeelhaar/cadence/adapter/cli/usage"
	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.LoggerFromEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", DatabaseDriver: "auto"}
	}

	logCfg := observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	logCfg.Output = os.Stderr
	logCfg.ServiceVersion = cli.Version
	logger = observability.NewLogger(logCfg)
	cli.SetLogger(logger)

	// Without storage only plans and version work; every other command
	// reports that it needs a database.
	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
		cliApp = cli.NewApp(container)
	}
	cli.SetApp(cliApp)

	cli.AddCommand(usage.Cmd)
	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}
