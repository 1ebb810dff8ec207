package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/instabids/scope-engine/pkg/services"
)

// RegisterConversationTools registers the tools that drive the collection protocol.
func RegisterConversationTools(s *server.MCPServer, deps *ToolDeps) {
	registerBeginTurnTool(s, deps)
	registerSkipScopeSlotTool(s, deps)
	registerConfirmProjectScopeTool(s, deps)
}

func registerBeginTurnTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"begin_turn",
		mcp.WithDescription(
			"Call at the start of every homeowner message. "+
				"Set has_image=true when the message carries an image; upload it with upload_image_to_storage "+
				"and submit the URL as image_url before recording other facts.",
		),
		mcp.WithString(
			"conversation_id",
			mcp.Required(),
			mcp.Description("Id of the conversation"),
		),
		mcp.WithBoolean(
			"has_image",
			mcp.Description("Whether the homeowner's message includes inline image data"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, errResult := requireConversationID(req)
		if errResult != nil {
			return errResult, nil
		}

		return execute(ctx, deps, "begin_turn", &services.Command{
			Kind:           services.CommandBeginTurn,
			ConversationID: conversationID,
			BeginTurn:      &services.BeginTurnCommand{HasImage: getOptionalBool(req, "has_image")},
		})
	})
}

func registerSkipScopeSlotTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"skip_scope_slot",
		mcp.WithDescription(
			"Skip an optional detail the homeowner does not want to provide. "+
				"Only contractor_notes and group_bidding_preference can be skipped.",
		),
		mcp.WithString(
			"conversation_id",
			mcp.Required(),
			mcp.Description("Id of the conversation"),
		),
		mcp.WithString(
			"slot",
			mcp.Required(),
			mcp.Description("Slot to skip: 'contractor_notes' or 'group_bidding_preference'"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, errResult := requireConversationID(req)
		if errResult != nil {
			return errResult, nil
		}
		slot, err := req.RequireString("slot")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		return execute(ctx, deps, "skip_scope_slot", &services.Command{
			Kind:           services.CommandSkipSlot,
			ConversationID: conversationID,
			SkipSlot:       &services.SkipSlotCommand{Slot: trimString(slot)},
		})
	})
}

func registerConfirmProjectScopeTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"confirm_project_scope",
		mcp.WithDescription(
			"Finalize the project scope after the homeowner reviewed the summary and agreed to it. "+
				"Only valid once every slot has been collected or skipped.",
		),
		mcp.WithString(
			"conversation_id",
			mcp.Required(),
			mcp.Description("Id of the conversation"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, errResult := requireConversationID(req)
		if errResult != nil {
			return errResult, nil
		}

		return execute(ctx, deps, "confirm_project_scope", &services.Command{
			Kind:           services.CommandConfirmScope,
			ConversationID: conversationID,
		})
	})
}

func requireConversationID(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	conversationID, err := req.RequireString("conversation_id")
	if err != nil {
		return "", NewErrorResult("invalid_parameters", err.Error())
	}
	conversationID = trimString(conversationID)
	if conversationID == "" {
		return "", NewErrorResult("invalid_parameters", "parameter 'conversation_id' cannot be empty")
	}
	return conversationID, nil
}
