package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/adapter/cli"
	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type billingStatusInput struct {
	UserID string `json:"user_id" jsonschema:"required"`
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("billing.status").
		Description("Get a user's effective plan and stored subscription record").
		Handler(func(ctx context.Context, input billingStatusInput) (any, error) {
			return billingStatus(ctx, app, input)
		})

	srv.Tool("plans.list").
		Description("List plans with prices and monthly limits").
		Handler(func(ctx context.Context, input struct{}) (any, error) {
			return domain.Catalog(), nil
		})

	return nil
}

func billingStatus(ctx context.Context, app *cli.App, input billingStatusInput) (billingApp.PlanView, error) {
	if app == nil || app.Status == nil {
		return billingApp.PlanView{}, errors.New("billing status requires database connection")
	}
	return app.Status.PlanInfo(ctx, input.UserID)
}
