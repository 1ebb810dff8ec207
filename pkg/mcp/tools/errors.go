package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/services"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a successful tool call with IsError set, so the driver
// sees the code and can act on it instead of the failure being swallowed
// by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
//
// Example:
//
//	if slot == "" {
//	    return NewErrorResult("invalid_parameters", "parameter 'slot' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorDetails tells the driver whether the identifiers it tracks can still be used.
type ErrorDetails struct {
	IdentifiersValid bool   `json:"identifiers_valid"`
	UpstreamStatus   int    `json:"upstream_status,omitempty"`
	Command          string `json:"command,omitempty"`
}

// NewServiceErrorResult converts a service error into a structured tool error.
// It returns nil for errors outside the taxonomy; callers return those as Go errors.
func NewServiceErrorResult(err error) *mcp.CallToolResult {
	code := apperrors.Code(err)
	if code == "" {
		return nil
	}

	details := ErrorDetails{IdentifiersValid: true}
	var cmdErr *services.CommandError
	if errors.As(err, &cmdErr) {
		details.IdentifiersValid = cmdErr.IdentifiersValid
		details.Command = string(cmdErr.Kind)
	}
	var uploadErr *apperrors.UploadError
	if errors.As(err, &uploadErr) {
		details.UpstreamStatus = uploadErr.Status
	}

	return NewErrorResultWithDetails(code, errorMessage(code, err), details)
}

// errorMessage prefixes the raw error with guidance the driver can relay.
func errorMessage(code string, err error) string {
	var hint string
	switch code {
	case apperrors.CodeStorageUnavailable:
		hint = "The project could not be saved right now; tell the user and try again shortly."
	case apperrors.CodeIndeterminate:
		hint = "It is unknown whether the last change was saved; review the project scope before continuing."
	case apperrors.CodePermissionDenied:
		hint = "This project scope belongs to a different owner."
	case apperrors.CodeNotFound:
		hint = "No such project scope."
	case apperrors.CodeUnsupportedMediaType:
		hint = "Only JPEG, PNG, GIF and WebP images are accepted."
	case apperrors.CodeInvalidEncoding:
		hint = "The image data could not be decoded."
	case apperrors.CodeUploadFailed:
		hint = "The image could not be uploaded; tell the user and continue without it."
	case apperrors.CodeInvalidTransition:
		hint = "This step is not allowed at this point of the conversation."
	default:
		return err.Error()
	}
	return fmt.Sprintf("%s (%v)", hint, err)
}

// isInputError reports whether err was caused by the caller rather than a
// backing-store failure. Input errors are logged at DEBUG, not ERROR.
func isInputError(err error) bool {
	switch apperrors.Code(err) {
	case apperrors.CodeStorageUnavailable, apperrors.CodeIndeterminate, apperrors.CodeUploadFailed, "":
		return false
	default:
		return true
	}
}
