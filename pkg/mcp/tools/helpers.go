package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/services"
)

// ToolDeps contains dependencies shared by the scope capture tools.
type ToolDeps struct {
	Conversations services.Conversations
	Logger        *zap.Logger
}

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, ok := arguments(req)[key].(string)
	if !ok {
		return ""
	}
	return trimString(val)
}

// getOptionalBool extracts an optional boolean argument. Drivers sometimes send
// "true"/"false" as strings; those are accepted too.
func getOptionalBool(req mcp.CallToolRequest, key string) bool {
	switch v := arguments(req)[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(trimString(v), "true")
	default:
		return false
	}
}

// getArgument returns the raw argument value and whether it was supplied.
func getArgument(req mcp.CallToolRequest, key string) (any, bool) {
	v, ok := arguments(req)[key]
	return v, ok
}

// execute runs a command and converts the outcome into a tool result.
func execute(ctx context.Context, deps *ToolDeps, toolName string, cmd *services.Command) (*mcp.CallToolResult, error) {
	res, err := deps.Conversations.Execute(ctx, cmd)
	if err != nil {
		result := NewServiceErrorResult(err)
		if result == nil {
			deps.Logger.Error("Tool failed",
				zap.String("tool", toolName),
				zap.Error(err))
			return nil, fmt.Errorf("%s failed: %w", toolName, err)
		}

		if isInputError(err) {
			deps.Logger.Debug("Tool rejected input",
				zap.String("tool", toolName),
				zap.String("conversation_id", cmd.ConversationID),
				zap.Error(err))
		} else {
			deps.Logger.Error("Tool failed",
				zap.String("tool", toolName),
				zap.String("conversation_id", cmd.ConversationID),
				zap.Error(err))
		}
		return result, nil
	}

	return newCommandResult(res)
}

// newCommandResult returns the human-readable message followed by the
// structured result as JSON.
func newCommandResult(res *services.Result) (*mcp.CallToolResult, error) {
	jsonResult, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	result := mcp.NewToolResultText(res.Message)
	result.Content = append(result.Content, mcp.NewTextContent(string(jsonResult)))
	return result, nil
}
