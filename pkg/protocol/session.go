// Package protocol implements the per-conversation fact submission state
// machine. It performs no I/O; callers persist Session between operations.
package protocol

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/models"
)

// State is the protocol state of a conversation.
type State string

const (
	StateStart        State = "START"
	StateImagePending State = "IMAGE_PENDING"
	StateCollecting   State = "COLLECTING"
	StateConfirming   State = "CONFIRMING"
	StateFinalized    State = "FINALIZED"
)

// Slot is one entry of the collection order.
type Slot struct {
	Field    models.ScopeField
	Required bool
}

// Slots is the fixed collection order.
var Slots = []Slot{
	{Field: models.FieldTitle, Required: true},
	{Field: models.FieldDescription, Required: true},
	{Field: models.FieldBudgetRange, Required: true},
	{Field: models.FieldTimeline, Required: true},
	{Field: models.FieldZipCode, Required: true},
	{Field: models.FieldContractorNotes},
	{Field: models.FieldGroupBiddingPreference},
}

func slotFor(f models.ScopeField) (Slot, bool) {
	for _, s := range Slots {
		if s.Field == f {
			return s, true
		}
	}
	return Slot{}, false
}

// Session is the persisted protocol state of one conversation.
type Session struct {
	ConversationID string              `json:"conversation_id"`
	OwnerID        string              `json:"owner_id,omitempty"`
	ScopeID        *uuid.UUID          `json:"scope_id,omitempty"`
	State          State               `json:"state"`
	Slot           models.ScopeField   `json:"slot,omitempty"`
	Recorded       []models.ScopeField `json:"recorded,omitempty"`
	Skipped        []models.ScopeField `json:"skipped,omitempty"`
	Resume         State               `json:"resume,omitempty"`
	PendingImage   string              `json:"pending_image_url,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewSession returns a session in START.
func NewSession(conversationID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ConversationID: conversationID,
		State:          StateStart,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy. Operations mutate a clone and the caller keeps
// it only once every side effect succeeded.
func (s *Session) Clone() *Session {
	c := *s
	c.Recorded = slices.Clone(s.Recorded)
	c.Skipped = slices.Clone(s.Skipped)
	if s.ScopeID != nil {
		id := *s.ScopeID
		c.ScopeID = &id
	}
	return &c
}

// ResetForNewProject drops everything tied to the current scope. The owner is kept.
func (s *Session) ResetForNewProject() {
	s.ScopeID = nil
	s.State = StateStart
	s.Slot = ""
	s.Recorded = nil
	s.Skipped = nil
	s.Resume = ""
	s.PendingImage = ""
}

// IsRecorded reports whether f has been recorded in this conversation.
func (s *Session) IsRecorded(f models.ScopeField) bool {
	return slices.Contains(s.Recorded, f)
}

// IsSkipped reports whether f has been skipped in this conversation.
func (s *Session) IsSkipped(f models.ScopeField) bool {
	return slices.Contains(s.Skipped, f)
}

// effectiveState is the state a submission is judged against: START behaves
// like COLLECTING at the first slot.
func (s *Session) effectiveState() State {
	if s.State == StateStart {
		return StateCollecting
	}
	return s.State
}

// BeginTurn marks the start of a user turn. A turn carrying inline image data
// enters IMAGE_PENDING until the image is either recorded or reported failed.
func (s *Session) BeginTurn(hasImage bool) error {
	if !hasImage {
		return nil
	}
	if s.State == StateImagePending {
		return fmt.Errorf("%w: an image is already pending for this conversation", apperrors.ErrInvalidTransition)
	}
	s.Resume = s.State
	s.State = StateImagePending
	s.PendingImage = ""
	return nil
}

// CheckSubmit validates a fact submission before any side effect.
// field is empty for facts without a dedicated column. It reports whether the
// submission is an out-of-protocol correction (after FINALIZED).
func (s *Session) CheckSubmit(field models.ScopeField) (correction bool, err error) {
	switch s.State {
	case StateImagePending:
		if field != models.FieldImageURL {
			return false, fmt.Errorf("%w: only image_url may be submitted while an image is pending", apperrors.ErrInvalidTransition)
		}
		return s.Resume == StateFinalized, nil
	case StateFinalized:
		return true, nil
	default:
		return false, nil
	}
}

// RecordSubmit applies a successful fact submission. It reports whether the
// conversation just entered CONFIRMING.
func (s *Session) RecordSubmit(field models.ScopeField) (enteredConfirming bool) {
	switch s.State {
	case StateFinalized:
		return false
	case StateImagePending:
		// Only image_url gets here, per CheckSubmit.
		s.State = s.Resume
		s.Resume = ""
		s.PendingImage = ""
	}

	if _, ok := slotFor(field); ok && !s.IsRecorded(field) {
		s.Recorded = append(s.Recorded, field)
	}

	if s.effectiveState() != StateCollecting {
		return false
	}
	return s.advance()
}

// ImageIngested records the URL of a successful upload. The conversation stays
// in IMAGE_PENDING until image_url is submitted.
func (s *Session) ImageIngested(url string) {
	if s.State == StateImagePending {
		s.PendingImage = url
	}
}

// ImageFailed leaves IMAGE_PENDING after a failed ingestion was reported to the user.
func (s *Session) ImageFailed() error {
	if s.State != StateImagePending {
		return fmt.Errorf("%w: no image is pending", apperrors.ErrInvalidTransition)
	}
	s.State = s.Resume
	s.Resume = ""
	s.PendingImage = ""
	if s.State == StateCollecting {
		s.advance()
	}
	return nil
}

// Skip skips an optional slot while collecting. It reports whether the
// conversation just entered CONFIRMING.
func (s *Session) Skip(field models.ScopeField) (enteredConfirming bool, err error) {
	if s.effectiveState() != StateCollecting {
		return false, fmt.Errorf("%w: slots can only be skipped while collecting, state is %s", apperrors.ErrInvalidTransition, s.State)
	}
	slot, ok := slotFor(field)
	if !ok {
		return false, fmt.Errorf("%w: %q is not a protocol slot", apperrors.ErrInvalidTransition, field)
	}
	if slot.Required {
		return false, fmt.Errorf("%w: %s is required and cannot be skipped", apperrors.ErrInvalidTransition, field)
	}
	if s.IsRecorded(field) {
		return false, fmt.Errorf("%w: %s is already recorded", apperrors.ErrInvalidTransition, field)
	}

	if !s.IsSkipped(field) {
		s.Skipped = append(s.Skipped, field)
	}
	return s.advance(), nil
}

// Confirm moves CONFIRMING to FINALIZED.
func (s *Session) Confirm() error {
	if s.State != StateConfirming {
		return fmt.Errorf("%w: confirmation requires CONFIRMING, state is %s", apperrors.ErrInvalidTransition, s.State)
	}
	s.State = StateFinalized
	s.Slot = ""
	return nil
}

// NextSlot returns the first slot that is neither recorded nor skipped.
func (s *Session) NextSlot() (models.ScopeField, bool) {
	for _, slot := range Slots {
		if !s.IsRecorded(slot.Field) && !s.IsSkipped(slot.Field) {
			return slot.Field, true
		}
	}
	return "", false
}

// advance moves the cursor to the next open slot, entering CONFIRMING when
// none is left. A cursor on an open slot never moves past it.
func (s *Session) advance() bool {
	next, ok := s.NextSlot()
	if ok {
		s.State = StateCollecting
		s.Slot = next
		return false
	}
	s.State = StateConfirming
	s.Slot = ""
	return true
}
