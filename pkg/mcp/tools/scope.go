// Package tools provides MCP tool implementations for scope-engine.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/services"
)

// RegisterScopeTools registers the fact submission and lookup tools.
func RegisterScopeTools(s *server.MCPServer, deps *ToolDeps) {
	registerSubmitScopeFactTool(s, deps)
	registerGetProjectScopeTool(s, deps)
}

func registerSubmitScopeFactTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"submit_scope_fact",
		mcp.WithDescription(
			"Record one fact about the homeowner's project. "+
				"Recognized facts: title, description, budget_range (alias budget), timeline, zip_code (aliases zip, location), "+
				"contractor_notes, group_bidding_preference (yes/no), image_url, summary. Any other fact_name is kept as an additional fact. "+
				"Omit project_scope_id on the first fact; the response returns the new project_scope_id and, when none was given, a new owner_id. "+
				"Pass conversation_id to let the service track the collection order and tell you which slot to ask about next. "+
				"Set new_project=true when the homeowner starts a different project.",
		),
		mcp.WithString(
			"fact_name",
			mcp.Required(),
			mcp.Description("Name of the fact (e.g., 'title', 'budget_range', 'zip_code')"),
		),
		mcp.WithString(
			"fact_value",
			mcp.Required(),
			mcp.Description("Value of the fact. Numbers and booleans are accepted and stored as text where the field is text."),
		),
		mcp.WithString(
			"project_scope_id",
			mcp.Description("Optional - UUID of the project scope returned by an earlier call"),
		),
		mcp.WithString(
			"owner_id",
			mcp.Description("Optional - homeowner id. A new one is generated when omitted."),
		),
		mcp.WithString(
			"conversation_id",
			mcp.Description("Optional - id of the conversation, used to track protocol state across calls"),
		),
		mcp.WithBoolean(
			"new_project",
			mcp.Description("Optional - start a new project scope instead of continuing the owner's active one"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		factName, err := req.RequireString("fact_name")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		factName = trimString(factName)
		if factName == "" {
			return NewErrorResult("invalid_parameters", "parameter 'fact_name' cannot be empty"), nil
		}

		factValue, ok := getArgument(req, "fact_value")
		if !ok || (factValue == nil && !isBooleanFact(factName)) {
			return NewErrorResult("invalid_parameters", "parameter 'fact_value' is required"), nil
		}

		return execute(ctx, deps, "submit_scope_fact", &services.Command{
			Kind:           services.CommandSubmitFact,
			ConversationID: getOptionalString(req, "conversation_id"),
			OwnerID:        getOptionalString(req, "owner_id"),
			ScopeID:        getOptionalString(req, "project_scope_id"),
			SubmitFact: &services.SubmitFactCommand{
				FactName:   factName,
				FactValue:  factValue,
				NewProject: getOptionalBool(req, "new_project"),
			},
		})
	})
}

func registerGetProjectScopeTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_project_scope",
		mcp.WithDescription(
			"Return the recorded project scope (the bid card) with every captured field, additional facts and images. "+
				"Without project_scope_id the owner's most recent project scope is returned.",
		),
		mcp.WithString(
			"owner_id",
			mcp.Description("Homeowner id. Required unless conversation_id refers to a conversation that already has one."),
		),
		mcp.WithString(
			"project_scope_id",
			mcp.Description("Optional - UUID of a specific project scope"),
		),
		mcp.WithString(
			"conversation_id",
			mcp.Description("Optional - id of the conversation whose project scope to return"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return execute(ctx, deps, "get_project_scope", &services.Command{
			Kind:           services.CommandReviewScope,
			ConversationID: getOptionalString(req, "conversation_id"),
			OwnerID:        getOptionalString(req, "owner_id"),
			ScopeID:        getOptionalString(req, "project_scope_id"),
		})
	})
}

// isBooleanFact reports whether name targets a boolean column, which stores
// null as false instead of rejecting it.
func isBooleanFact(name string) bool {
	f, ok := models.LookupField(name)
	return ok && f.IsBoolean()
}
