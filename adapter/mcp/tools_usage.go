package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type usageStatusInput struct {
	UserID string `json:"user_id" jsonschema:"required"`
}

type usageEnforceInput struct {
	UserID    string   `json:"user_id" jsonschema:"required"`
	Kind      string   `json:"kind" jsonschema:"required"` // generation, export, audio_minutes
	Quantity  *float64 `json:"quantity,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func registerUsageTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("usage.status").
		Description("Get a user's effective plan and month-to-date usage per kind").
		Handler(func(ctx context.Context, input usageStatusInput) (any, error) {
			return usageStatus(ctx, app, input)
		})

	srv.Tool("usage.enforce").
		Description("Charge usage for a user if it fits the plan quota. Returns the decision; ok=false means upgrade required").
		Handler(func(ctx context.Context, input usageEnforceInput) (any, error) {
			return usageEnforce(ctx, app, input)
		})

	return nil
}

func usageStatus(ctx context.Context, app *cli.App, input usageStatusInput) (domain.UsageStatus, error) {
	if app == nil || app.Status == nil {
		return domain.UsageStatus{}, errors.New("usage status requires database connection")
	}
	return app.Status.UsageStatus(ctx, input.UserID)
}

func usageEnforce(ctx context.Context, app *cli.App, input usageEnforceInput) (domain.Decision, error) {
	if app == nil || app.Gate == nil {
		return domain.Decision{}, errors.New("usage enforcement requires database connection")
	}
	kind, err := domain.ParseEventKind(input.Kind)
	if err != nil {
		return domain.Decision{}, err
	}
	return app.Gate.Enforce(ctx, billingApp.EnforceRequest{
		UserID:    input.UserID,
		Kind:      kind,
		Quantity:  input.Quantity,
		RequestID: input.RequestID,
	})
}
