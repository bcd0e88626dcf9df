package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose plan data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Resource("cadence://plans").
		Name("Plans").
		Description("Plan catalog with prices and monthly limits").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			data, err := json.MarshalIndent(domain.Catalog(), "", "  ")
			if err != nil {
				return nil, err
			}
			return &mcp.ResourceContent{
				URI:      uri,
				MimeType: "application/json",
				Text:     string(data),
			}, nil
		})

	return nil
}
