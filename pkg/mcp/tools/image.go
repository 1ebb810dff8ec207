package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/instabids/scope-engine/pkg/services"
)

// RegisterImageTools registers the image upload tool.
func RegisterImageTools(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"upload_image_to_storage",
		mcp.WithDescription(
			"Upload an image the homeowner attached and return its public URL. "+
				"Accepts JPEG, PNG, GIF and WebP as base64, with or without a data: URL prefix. "+
				"The URL is not added to the project automatically: submit it with submit_scope_fact as image_url. "+
				"If the upload fails, tell the homeowner and continue collecting the project details.",
		),
		mcp.WithString(
			"image_base64",
			mcp.Required(),
			mcp.Description("Base64-encoded image data"),
		),
		mcp.WithString(
			"mime_type",
			mcp.Required(),
			mcp.Description("MIME type of the image: image/jpeg, image/png, image/gif or image/webp"),
		),
		mcp.WithString(
			"conversation_id",
			mcp.Description("Optional - id of the conversation the image belongs to"),
		),
		mcp.WithString(
			"project_scope_id",
			mcp.Description("Optional - UUID of the project scope; the stored object is named after it"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := req.RequireString("image_base64")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		mimeType, err := req.RequireString("mime_type")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		return execute(ctx, deps, "upload_image_to_storage", &services.Command{
			Kind:           services.CommandIngestImage,
			ConversationID: getOptionalString(req, "conversation_id"),
			ScopeID:        getOptionalString(req, "project_scope_id"),
			IngestImage: &services.IngestImageCommand{
				ImageBase64: data,
				MimeType:    mimeType,
			},
		})
	})
}
