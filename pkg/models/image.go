package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageAsset is a catalogued upload. Stored in project_images table.
// ScopeID is the hint given at upload time and may be nil.
type ImageAsset struct {
	ID        uuid.UUID  `json:"asset_id"`
	ScopeID   *uuid.UUID `json:"project_scope_id,omitempty"`
	MimeType  string     `json:"mime_type"`
	Path      string     `json:"path"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
