package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/protocol"
)

// CommandKind names a protocol operation.
type CommandKind string

const (
	CommandSubmitFact   CommandKind = "submit_fact"
	CommandIngestImage  CommandKind = "ingest_image"
	CommandBeginTurn    CommandKind = "begin_turn"
	CommandSkipSlot     CommandKind = "skip_slot"
	CommandReviewScope  CommandKind = "review_scope"
	CommandConfirmScope CommandKind = "confirm_scope"
)

// Command is one protocol operation issued by a driver. Exactly the payload
// matching Kind is read; review_scope and confirm_scope carry none.
type Command struct {
	Kind           CommandKind `json:"kind"`
	ConversationID string      `json:"conversation_id,omitempty"`
	OwnerID        string      `json:"owner_id,omitempty"`
	ScopeID        string      `json:"project_scope_id,omitempty"`

	SubmitFact  *SubmitFactCommand  `json:"submit_fact,omitempty"`
	IngestImage *IngestImageCommand `json:"ingest_image,omitempty"`
	BeginTurn   *BeginTurnCommand   `json:"begin_turn,omitempty"`
	SkipSlot    *SkipSlotCommand    `json:"skip_slot,omitempty"`
}

type SubmitFactCommand struct {
	FactName   string `json:"fact_name"`
	FactValue  any    `json:"fact_value"`
	NewProject bool   `json:"new_project,omitempty"`
}

type IngestImageCommand struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

type BeginTurnCommand struct {
	HasImage bool `json:"has_image"`
}

type SkipSlotCommand struct {
	Slot string `json:"slot"`
}

// Result is the structured outcome of a command. Message is a human-readable
// rendering for the driver.
type Result struct {
	Kind           CommandKind    `json:"kind"`
	ConversationID string         `json:"conversation_id,omitempty"`
	OwnerID        string         `json:"owner_id,omitempty"`
	OwnerGenerated bool           `json:"owner_generated,omitempty"`
	ScopeID        *uuid.UUID     `json:"project_scope_id,omitempty"`
	State          protocol.State `json:"state,omitempty"`
	NextSlot       string         `json:"next_slot,omitempty"`

	Correction        bool `json:"correction,omitempty"`
	EnteredConfirming bool `json:"entered_confirming,omitempty"`

	Fact  *SubmitFactResult   `json:"fact,omitempty"`
	Image *IngestImageResult  `json:"image,omitempty"`
	Scope *models.ScopeRecord `json:"scope,omitempty"`

	// StateSaved is false when the operation succeeded but the conversation
	// state could not be persisted.
	StateSaved bool   `json:"state_saved"`
	Message    string `json:"message"`
}

// CommandError is returned by Execute for every failed command.
type CommandError struct {
	Kind CommandKind
	// IdentifiersValid is false when the failure may have left the tracked
	// owner or scope identifiers unusable (a failed scope creation).
	IdentifiersValid bool
	Err              error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Conversations runs protocol commands, one at a time per conversation.
type Conversations interface {
	Execute(ctx context.Context, cmd *Command) (*Result, error)
}

type conversations struct {
	ledger ScopeLedger
	images ImageIntake
	store  ConversationStore
	locks  *conversationLocks
	logger *zap.Logger
}

// NewConversations creates the command dispatcher. lockCacheSize bounds the
// number of idle per-conversation locks kept in memory.
func NewConversations(
	ledger ScopeLedger,
	images ImageIntake,
	store ConversationStore,
	lockCacheSize int,
	logger *zap.Logger,
) (Conversations, error) {
	locks, err := newConversationLocks(lockCacheSize)
	if err != nil {
		return nil, err
	}
	return &conversations{
		ledger: ledger,
		images: images,
		store:  store,
		locks:  locks,
		logger: logger.Named("conversations"),
	}, nil
}

var _ Conversations = (*conversations)(nil)

func (c *conversations) Execute(ctx context.Context, cmd *Command) (*Result, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, &CommandError{Kind: cmd.Kind, IdentifiersValid: true, Err: err}
	}

	scopeID, err := parseScopeID(cmd.ScopeID)
	if err != nil {
		return nil, &CommandError{Kind: cmd.Kind, IdentifiersValid: true, Err: err}
	}

	var res *Result
	if cmd.ConversationID == "" {
		res, err = c.executeStateless(ctx, cmd, scopeID)
	} else {
		res, err = c.executeInConversation(ctx, cmd, scopeID)
	}
	if err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			err = &CommandError{Kind: cmd.Kind, IdentifiersValid: true, Err: err}
		}
		return nil, err
	}

	res.Kind = cmd.Kind
	res.Message = renderMessage(res)
	return res, nil
}

// executeStateless serves drivers that track identifiers themselves.
func (c *conversations) executeStateless(ctx context.Context, cmd *Command, scopeID *uuid.UUID) (*Result, error) {
	switch cmd.Kind {
	case CommandSubmitFact:
		ownerID, generated := ResolveOwner(cmd.OwnerID)
		fact, err := c.ledger.SubmitFact(ctx, &SubmitFactRequest{
			OwnerID:    ownerID,
			ScopeID:    scopeID,
			FactName:   cmd.SubmitFact.FactName,
			FactValue:  cmd.SubmitFact.FactValue,
			NewProject: cmd.SubmitFact.NewProject,
		})
		if err != nil {
			return nil, submitError(cmd.Kind, scopeID, err)
		}
		return &Result{
			OwnerID:        ownerID,
			OwnerGenerated: generated,
			ScopeID:        &fact.ScopeID,
			Fact:           fact,
			StateSaved:     true,
		}, nil

	case CommandIngestImage:
		img, err := c.images.IngestImage(ctx, &IngestImageRequest{
			ScopeHint:   scopeID,
			ImageBase64: cmd.IngestImage.ImageBase64,
			MimeType:    cmd.IngestImage.MimeType,
		})
		if err != nil {
			return nil, err
		}
		return &Result{ScopeID: scopeID, Image: img, StateSaved: true}, nil

	case CommandReviewScope:
		scope, err := c.review(ctx, cmd.OwnerID, scopeID)
		if err != nil {
			return nil, err
		}
		return &Result{OwnerID: scope.OwnerID, ScopeID: &scope.ID, Scope: scope, StateSaved: true}, nil

	default:
		return nil, fmt.Errorf("%w: %s requires conversation_id", apperrors.ErrInvalidParameters, cmd.Kind)
	}
}

func (c *conversations) executeInConversation(ctx context.Context, cmd *Command, scopeID *uuid.UUID) (*Result, error) {
	release, err := c.locks.acquire(ctx, cmd.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for conversation %s: %w", apperrors.ErrStorageUnavailable, cmd.ConversationID, err)
	}
	defer release()

	saved, err := c.store.Load(ctx, cmd.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
	}
	if saved == nil {
		saved = protocol.NewSession(cmd.ConversationID)
	}

	sess := saved.Clone()
	res := &Result{ConversationID: cmd.ConversationID}

	if strings.TrimSpace(cmd.OwnerID) != "" {
		sess.OwnerID = cmd.OwnerID
	}
	if scopeID != nil {
		// Slot progress belongs to the scope it was recorded on.
		if sess.ScopeID != nil && *sess.ScopeID != *scopeID {
			sess.ResetForNewProject()
		}
		sess.ScopeID = scopeID
	}

	var opErr error
	persist := true
	switch cmd.Kind {
	case CommandSubmitFact:
		opErr = c.submitFact(ctx, sess, cmd.SubmitFact, res)
	case CommandIngestImage:
		// A failed ingestion is reported and leaves IMAGE_PENDING, so the
		// session is saved either way.
		opErr = c.ingestImage(ctx, sess, cmd.IngestImage, res)
	case CommandBeginTurn:
		opErr = sess.BeginTurn(cmd.BeginTurn.HasImage)
	case CommandSkipSlot:
		opErr = c.skipSlot(ctx, sess, cmd.SkipSlot, res)
	case CommandReviewScope:
		persist = false
		res.Scope, opErr = c.review(ctx, sess.OwnerID, sess.ScopeID)
	case CommandConfirmScope:
		opErr = c.confirm(ctx, sess)
	}
	if opErr != nil && cmd.Kind != CommandIngestImage {
		return nil, opErr
	}

	res.OwnerID = sess.OwnerID
	res.ScopeID = sess.ScopeID
	res.State = sess.State
	if next, ok := sess.NextSlot(); ok && sess.State != protocol.StateConfirming && sess.State != protocol.StateFinalized {
		res.NextSlot = string(next)
	}

	res.StateSaved = true
	if persist {
		sess.UpdatedAt = time.Now().UTC()
		if err := c.store.Save(ctx, sess); err != nil {
			c.logger.Error("Failed to save conversation state",
				zap.String("conversation_id", cmd.ConversationID),
				zap.String("command", string(cmd.Kind)),
				zap.Error(err))
			res.StateSaved = false
		}
	}

	if opErr != nil {
		return nil, opErr
	}
	return res, nil
}

func (c *conversations) submitFact(ctx context.Context, sess *protocol.Session, sub *SubmitFactCommand, res *Result) error {
	field, _ := models.LookupField(sub.FactName)
	correction, err := sess.CheckSubmit(field)
	if err != nil {
		return err
	}

	if sub.NewProject {
		sess.ResetForNewProject()
	}

	ownerID, generated := ResolveOwner(sess.OwnerID)
	fact, err := c.ledger.SubmitFact(ctx, &SubmitFactRequest{
		OwnerID:    ownerID,
		ScopeID:    sess.ScopeID,
		FactName:   sub.FactName,
		FactValue:  sub.FactValue,
		NewProject: sub.NewProject,
	})
	if err != nil {
		return submitError(CommandSubmitFact, sess.ScopeID, err)
	}

	sess.OwnerID = ownerID
	sess.ScopeID = &fact.ScopeID
	res.OwnerGenerated = generated
	res.Fact = fact
	res.Correction = correction

	if sess.RecordSubmit(field) {
		if err := c.ledger.SetStatus(ctx, ownerID, fact.ScopeID, models.ScopeStatusConfirming); err != nil {
			return err
		}
		res.EnteredConfirming = true
	}
	return nil
}

func (c *conversations) ingestImage(ctx context.Context, sess *protocol.Session, img *IngestImageCommand, res *Result) error {
	if sess.State != protocol.StateImagePending {
		if err := sess.BeginTurn(true); err != nil {
			return err
		}
	}

	out, err := c.images.IngestImage(ctx, &IngestImageRequest{
		ScopeHint:   sess.ScopeID,
		ImageBase64: img.ImageBase64,
		MimeType:    img.MimeType,
	})
	if err != nil {
		if failErr := sess.ImageFailed(); failErr != nil {
			return errors.Join(err, failErr)
		}
		return err
	}

	sess.ImageIngested(out.URL)
	res.Image = out
	return nil
}

func (c *conversations) skipSlot(ctx context.Context, sess *protocol.Session, skip *SkipSlotCommand, res *Result) error {
	field, _ := models.LookupField(skip.Slot)
	if field == "" {
		field = models.ScopeField(models.NormalizeFactName(skip.Slot))
	}

	entered, err := sess.Skip(field)
	if err != nil {
		return err
	}
	if entered && sess.ScopeID != nil {
		if err := c.ledger.SetStatus(ctx, sess.OwnerID, *sess.ScopeID, models.ScopeStatusConfirming); err != nil {
			return err
		}
		res.EnteredConfirming = true
	}
	return nil
}

func (c *conversations) confirm(ctx context.Context, sess *protocol.Session) error {
	if sess.ScopeID == nil {
		return fmt.Errorf("%w: no project scope to confirm", apperrors.ErrInvalidTransition)
	}
	if err := sess.Confirm(); err != nil {
		return err
	}
	return c.ledger.SetStatus(ctx, sess.OwnerID, *sess.ScopeID, models.ScopeStatusFinalized)
}

// review returns the given scope, or the owner's newest one when scopeID is nil.
func (c *conversations) review(ctx context.Context, ownerID string, scopeID *uuid.UUID) (*models.ScopeRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required to look up a project scope", apperrors.ErrInvalidParameters)
	}
	if scopeID != nil {
		return c.ledger.GetScope(ctx, ownerID, *scopeID)
	}
	return c.ledger.GetLatestScope(ctx, ownerID)
}

// submitError marks a failed scope creation as invalidating identifiers.
func submitError(kind CommandKind, scopeID *uuid.UUID, err error) error {
	creating := scopeID == nil
	failedWrite := errors.Is(err, apperrors.ErrStorageUnavailable) || errors.Is(err, apperrors.ErrIndeterminate)
	return &CommandError{Kind: kind, IdentifiersValid: !(creating && failedWrite), Err: err}
}

func validateCommand(cmd *Command) error {
	var missing bool
	switch cmd.Kind {
	case CommandSubmitFact:
		missing = cmd.SubmitFact == nil
	case CommandIngestImage:
		missing = cmd.IngestImage == nil
	case CommandBeginTurn:
		missing = cmd.BeginTurn == nil
	case CommandSkipSlot:
		missing = cmd.SkipSlot == nil
	case CommandReviewScope, CommandConfirmScope:
	case "":
		return fmt.Errorf("%w: command kind is required", apperrors.ErrInvalidParameters)
	default:
		return fmt.Errorf("%w: unknown command kind %q", apperrors.ErrInvalidParameters, cmd.Kind)
	}
	if missing {
		return fmt.Errorf("%w: %s payload is required", apperrors.ErrInvalidParameters, cmd.Kind)
	}
	return nil
}

func parseScopeID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: project_scope_id %q is not a UUID", apperrors.ErrInvalidParameters, raw)
	}
	return &id, nil
}
