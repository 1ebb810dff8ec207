package services

import (
	"strings"

	"github.com/google/uuid"
)

// ResolveOwner returns the caller's owner id, or a fresh random one when none
// was supplied. Owner ids are opaque and never checked for existence.
func ResolveOwner(maybeOwnerID string) (ownerID string, generated bool) {
	if id := strings.TrimSpace(maybeOwnerID); id != "" {
		return maybeOwnerID, false
	}
	return uuid.NewString(), true
}
