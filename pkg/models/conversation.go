package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation is the persisted protocol state of one driver conversation.
// Stored in conversation_sessions table (or Redis). State is opaque here.
type Conversation struct {
	ID        string          `json:"id"`
	OwnerID   *string         `json:"owner_id,omitempty"`
	ScopeID   *uuid.UUID      `json:"scope_id,omitempty"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
