package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/services"
)

// maxCommandBodyBytes bounds a command envelope. Image commands carry the
// base64 payload inline, so this is well above the decoded image limit.
const maxCommandBodyBytes = 16 << 20

// ConversationHandler exposes the protocol commands and scope lookups over plain HTTP.
type ConversationHandler struct {
	conversations services.Conversations
	logger        *zap.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversations services.Conversations, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		logger:        logger.Named("conversation-handler"),
	}
}

// RegisterRoutes registers the conversation and scope routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations/{cid}/commands", h.ExecuteCommand)
	mux.HandleFunc("GET /api/owners/{oid}/scopes/latest", h.GetLatestScope)
	mux.HandleFunc("GET /api/owners/{oid}/scopes/{sid}", h.GetScope)
}

// ExecuteCommand handles POST /api/conversations/{cid}/commands.
// The body is a command envelope; the conversation id comes from the path.
func (h *ConversationHandler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := ParseConversationID(w, r, h.logger)
	if !ok {
		return
	}

	var cmd services.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBodyBytes))
	if err := dec.Decode(&cmd); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		} else if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		if err := ErrorResponse(w, status, "invalid_request", "Invalid command body: "+err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	cmd.ConversationID = conversationID

	h.execute(w, r, &cmd)
}

// GetLatestScope handles GET /api/owners/{oid}/scopes/latest.
func (h *ConversationHandler) GetLatestScope(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ParseOwnerID(w, r, h.logger)
	if !ok {
		return
	}

	h.execute(w, r, &services.Command{
		Kind:    services.CommandReviewScope,
		OwnerID: ownerID,
	})
}

// GetScope handles GET /api/owners/{oid}/scopes/{sid}.
func (h *ConversationHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ParseOwnerID(w, r, h.logger)
	if !ok {
		return
	}
	scopeID, ok := ParseScopeID(w, r, h.logger)
	if !ok {
		return
	}

	h.execute(w, r, &services.Command{
		Kind:    services.CommandReviewScope,
		OwnerID: ownerID,
		ScopeID: scopeID.String(),
	})
}

func (h *ConversationHandler) execute(w http.ResponseWriter, r *http.Request, cmd *services.Command) {
	res, err := h.conversations.Execute(r.Context(), cmd)
	if err != nil {
		status, code := StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Command failed",
				zap.String("kind", string(cmd.Kind)),
				zap.String("conversation_id", cmd.ConversationID),
				zap.String("code", code),
				zap.Error(err))
		} else {
			h.logger.Debug("Command rejected",
				zap.String("kind", string(cmd.Kind)),
				zap.String("conversation_id", cmd.ConversationID),
				zap.String("code", code),
				zap.Error(err))
		}
		if err := WriteServiceError(w, err); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, res); err != nil {
		h.logger.Error("Failed to encode command result", zap.Error(err))
	}
}
