// Package apptest builds SQLite-backed containers for adapter tests.
package apptest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/app"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/stretchr/testify/require"
)

// Config returns a test configuration backed by a SQLite file in a
// temporary directory.
func Config(t testing.TB) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:             "test",
		DatabaseDriver:     "sqlite",
		SQLitePath:         filepath.Join(t.TempDir(), "cadence.db"),
		StorageTimeout:     time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Second,
		RateLimitPerMinute: 1000,
		StripePricePlans:   map[string]string{"price_starter": "starter", "price_pro": "pro"},
		ShopifyPeriodDays:  30,
	}
}

// NewContainer wires a container from cfg, or from Config when cfg is nil,
// and closes it when the test ends.
func NewContainer(t testing.TB, cfg *config.Config) *app.Container {
	t.Helper()
	if cfg == nil {
		cfg = Config(t)
	}
	c, err := app.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
