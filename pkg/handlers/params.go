package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseScopeID extracts and validates the project scope ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseScopeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_project_scope_id", "Invalid project scope ID format", logger)
}

// ParseOwnerID extracts the opaque owner ID from the request path.
// Expects path parameter: oid
func ParseOwnerID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseRequired(w, r, "oid", "invalid_owner_id", "Owner ID is required", logger)
}

// ParseConversationID extracts the opaque conversation ID from the request path.
// Expects path parameter: cid
func ParseConversationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	return parseRequired(w, r, "cid", "invalid_conversation_id", "Conversation ID is required", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

func parseRequired(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (string, bool) {
	v := strings.TrimSpace(r.PathValue(pathParam))
	if v == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return v, true
}
