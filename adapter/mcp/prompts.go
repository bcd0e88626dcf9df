package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common support workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("quota_review").
		Description("Review a user's quota and suggest whether they need an upgrade.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			userID := args["user_id"]
			if userID == "" {
				userID = "<user id>"
			}
			return &mcp.PromptResult{
				Description: "Quota Review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Review the quota of user %s.

1. Call billing.status to see the effective plan and the stored subscription.
2. Call usage.status to see month-to-date usage per kind.
3. Compare usage with the limits in the cadence://plans resource.

Report which kinds are close to their limit and whether a higher plan
would cover the current usage.`, userID),
						},
					},
				},
			}, nil
		})

	return nil
}
