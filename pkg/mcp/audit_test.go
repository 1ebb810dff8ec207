package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupAuditTest() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewAuditLogger(zap.New(core)), logs
}

func toolRequest(name string, args map[string]any) *mcplib.CallToolRequest {
	req := &mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestSanitizeParams_SummarizesImagePayload(t *testing.T) {
	payload := strings.Repeat("A", 4096)
	params := sanitizeParams(map[string]any{
		"image_base64": payload,
		"mime_type":    "image/png",
		"fact_value":   "data:image/png;base64," + payload,
		"new_project":  true,
	})

	summary, ok := params["image_base64"].(string)
	require.True(t, ok)
	assert.Contains(t, summary, "(4096 bytes)")
	assert.Less(t, len(summary), 100)
	assert.Contains(t, params["fact_value"].(string), "bytes)")
	assert.Equal(t, "image/png", params["mime_type"])
	assert.Equal(t, true, params["new_project"])
}

func TestSanitizeParams_Empty(t *testing.T) {
	assert.Nil(t, sanitizeParams(nil))
	assert.Nil(t, sanitizeParams(map[string]any{}))
	assert.Nil(t, sanitizeParams("not a map"))
}

func TestSanitizeParams_TruncatesLongStrings(t *testing.T) {
	params := sanitizeParams(map[string]any{"contractor_notes": strings.Repeat("x", 5000)})
	assert.Len(t, params["contractor_notes"].(string), maxParamSize+3)
}

func TestSummarizeResult_ExtractsErrorCode(t *testing.T) {
	assert.Nil(t, summarizeResult(nil))

	ok := summarizeResult(mcplib.NewToolResultText("done"))
	assert.Equal(t, false, ok["is_error"])
	assert.NotContains(t, ok, "code")

	failed := &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: `{"error":true,"code":"upload_failed","message":"denied"}`},
		},
	}
	summary := summarizeResult(failed)
	assert.Equal(t, true, summary["is_error"])
	assert.Equal(t, "upload_failed", summary["code"])
}

func TestAuditLogger_ToolCall(t *testing.T) {
	a, logs := setupAuditTest()
	ctx := context.Background()
	req := toolRequest("submit_scope_fact", map[string]any{"fact_name": "title", "fact_value": "Deck"})

	a.beforeCallTool(ctx, 1, req)
	a.afterCallTool(ctx, 1, req, mcplib.NewToolResultText("ok"))

	entries := logs.FilterMessage("Tool call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "submit_scope_fact", entries[0].ContextMap()["tool"])

	_, stillTracked := a.startTimes.Load(1)
	assert.False(t, stillTracked)
}

func TestAuditLogger_ErrorResult(t *testing.T) {
	a, logs := setupAuditTest()
	ctx := context.Background()
	req := toolRequest("confirm_project_scope", map[string]any{"conversation_id": "c1"})
	result := &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: `{"error":true,"code":"invalid_transition"}`},
		},
	}

	a.beforeCallTool(ctx, "r1", req)
	a.afterCallTool(ctx, "r1", req, result)

	entries := logs.FilterMessage("Tool call returned error result").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "invalid_transition", entries[0].ContextMap()["code"])
}

func TestAuditLogger_OnError(t *testing.T) {
	a, logs := setupAuditTest()
	ctx := context.Background()
	req := toolRequest("submit_scope_fact", nil)

	a.onError(ctx, 1, mcplib.MethodToolsList, req, errors.New("ignored"))
	assert.Equal(t, 0, logs.Len())

	a.beforeCallTool(ctx, 2, req)
	a.onError(ctx, 2, mcplib.MethodToolsCall, req, errors.New("postgres://user:pw@db:5432 refused"))

	entries := logs.FilterMessage("Tool call failed").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap()["error"], "pw")
}
