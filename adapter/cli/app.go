package cli

import (
	"log/slog"

	"github.com/felixgeelhaar/cadence/internal/app"
	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/infrastructure/provider"
	"github.com/felixgeelhaar/cadence/pkg/config"
)

// App holds the CLI application dependencies.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Billing services
	Gate      *billingApp.Gate
	Status    *billingApp.StatusService
	Sync      *billingApp.SyncService
	Providers *provider.Registry

	// Container is nil when the App was assembled by hand.
	Container *app.Container
}

// NewApp creates a new CLI application backed by container.
func NewApp(container *app.Container) *App {
	return &App{
		Config:    container.Config,
		Logger:    container.Logger,
		Gate:      container.Gate,
		Status:    container.StatusService,
		Sync:      container.SyncService,
		Providers: container.Providers,
		Container: container,
	}
}

// globalApp is the CLI application instance
var globalApp *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	globalApp = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return globalApp
}
