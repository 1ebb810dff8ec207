package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/instabids/scope-engine/pkg/logging"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResult struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and the state of each dependency.
func RegisterHealthTool(s *server.MCPServer, version string, checks ...HealthCheck) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := json.Marshal(runHealthChecks(ctx, version, checks))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}

func runHealthChecks(ctx context.Context, version string, checks []HealthCheck) healthResult {
	res := healthResult{Status: "ok", Version: version}
	if len(checks) == 0 {
		return res
	}

	res.Dependencies = make(map[string]string, len(checks))
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			res.Status = "degraded"
			res.Dependencies[c.Name] = logging.SanitizeError(err)
			continue
		}
		res.Dependencies[c.Name] = "ok"
	}
	return res
}
