package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/cadence/adapter/api"
	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr        string
	serveRelayOutbox bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server and block until interrupted.

Examples:
  cadence serve
  cadence serve --addr :9090 --relay-outbox`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		if a == nil || a.Container == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Serving the API requires database connection.")
			return nil
		}
		ctx := cmd.Context()

		srv, err := newAPIServer(a.Container, serveAddr)
		if err != nil {
			return err
		}

		if serveRelayOutbox {
			stop, err := startOutboxRelay(ctx, a.Container)
			if err != nil {
				return err
			}
			defer stop()
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveRelayOutbox, "relay-outbox", false, "also relay outbox messages in this process")
	rootCmd.AddCommand(serveCmd)
}

func newAPIServer(c *app.Container, addr string) (*api.Server, error) {
	cfg := c.Config
	verifier, err := api.NewJWTVerifier(cfg.AuthJWTSecret)
	if err != nil {
		return nil, fmt.Errorf("AUTH_JWT_SECRET: %w", err)
	}

	handler := api.NewHandler(api.HandlerConfig{
		Gate:           c.Gate,
		Status:         c.StatusService,
		Sync:           c.SyncService,
		Providers:      c.Providers,
		Health:         c.Health.Handler(),
		MetricsHandler: c.Metrics.Handler(),
		Verifier:       verifier,
		AdminToken:     cfg.AdminToken,
		Limiter:        api.NewRateLimiter(c.RedisClient, cfg.RateLimitPerMinute, c.Logger, c.Metrics),
		Metrics:        c.Metrics,
		Logger:         c.Logger,
	})

	serverCfg := api.DefaultServerConfig()
	if cfg.HTTPAddr != "" {
		serverCfg.Addr = cfg.HTTPAddr
	}
	if addr != "" {
		serverCfg.Addr = addr
	}
	return api.NewServer(serverCfg, handler, c.Logger), nil
}

func startOutboxRelay(ctx context.Context, c *app.Container) (func(), error) {
	publisher, err := app.NewEventPublisher(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}

	processorCfg := outbox.DefaultProcessorConfig()
	if c.Config.OutboxPollInterval > 0 {
		processorCfg.PollInterval = c.Config.OutboxPollInterval
	}
	if c.Config.OutboxBatchSize > 0 {
		processorCfg.BatchSize = c.Config.OutboxBatchSize
	}
	if c.Config.OutboxMaxRetries > 0 {
		processorCfg.MaxRetries = c.Config.OutboxMaxRetries
	}

	processor := outbox.NewProcessor(c.OutboxRepo, publisher, processorCfg, c.Logger, outbox.WithMetrics(c.Metrics))
	if err := processor.Start(ctx); err != nil {
		_ = publisher.Close()
		return nil, err
	}
	return func() {
		processor.Stop()
		_ = publisher.Close()
	}, nil
}
