package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/jsonutil"
	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/repositories"
)

// TxRunner binds a database querier to a context. *database.DB implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithPool(ctx context.Context) context.Context
}

var _ TxRunner = (*database.DB)(nil)

// SubmitFactRequest is one fact destined for a ScopeRecord.
type SubmitFactRequest struct {
	OwnerID   string
	ScopeID   *uuid.UUID
	FactName  string
	FactValue any
	// NewProject forces creation of a new scope when ScopeID is nil, even if the
	// owner already has an active one.
	NewProject bool
}

// SubmitFactResult describes where a fact was recorded.
type SubmitFactResult struct {
	ScopeID         uuid.UUID         `json:"project_scope_id"`
	CreatedNewScope bool              `json:"created_new_scope"`
	FactName        string            `json:"fact_name"`
	Field           models.ScopeField `json:"field,omitempty"`
	Value           any               `json:"value"`
	Misc            bool              `json:"misc"`
	Ambiguous       bool              `json:"ambiguous,omitempty"`
	Changed         bool              `json:"changed"`
}

// ScopeLedger owns all reads and writes of ScopeRecords.
type ScopeLedger interface {
	// SubmitFact records one fact, creating the scope when needed.
	SubmitFact(ctx context.Context, req *SubmitFactRequest) (*SubmitFactResult, error)

	// GetScope returns a scope with its misc facts and images.
	GetScope(ctx context.Context, ownerID string, scopeID uuid.UUID) (*models.ScopeRecord, error)

	// GetLatestScope returns the owner's newest scope with its misc facts and images.
	GetLatestScope(ctx context.Context, ownerID string) (*models.ScopeRecord, error)

	// SetStatus moves a scope to a lifecycle status.
	SetStatus(ctx context.Context, ownerID string, scopeID uuid.UUID, status models.ScopeStatus) error
}

type scopeLedger struct {
	db        TxRunner
	scopeRepo repositories.ScopeRepository
	factRepo  repositories.ScopeFactRepository
	imageRepo repositories.ImageRepository
	timeout   time.Duration
	logger    *zap.Logger
}

// NewScopeLedger creates a new scope ledger. Every call is bounded by timeout.
func NewScopeLedger(
	db TxRunner,
	scopeRepo repositories.ScopeRepository,
	factRepo repositories.ScopeFactRepository,
	imageRepo repositories.ImageRepository,
	timeout time.Duration,
	logger *zap.Logger,
) ScopeLedger {
	return &scopeLedger{
		db:        db,
		scopeRepo: scopeRepo,
		factRepo:  factRepo,
		imageRepo: imageRepo,
		timeout:   timeout,
		logger:    logger.Named("scope-ledger"),
	}
}

var _ ScopeLedger = (*scopeLedger)(nil)

// coercedFact is a validated fact ready to be written.
type coercedFact struct {
	name      string
	field     models.ScopeField
	misc      bool
	value     any
	ambiguous bool
}

func (s *scopeLedger) SubmitFact(ctx context.Context, req *SubmitFactRequest) (*SubmitFactResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", apperrors.ErrInvalidParameters)
	}

	fact, err := coerceFact(req.FactName, req.FactValue)
	if err != nil {
		return nil, err
	}
	if fact.ambiguous {
		s.logger.Warn("Ambiguous boolean fact value coerced to false",
			zap.String("owner_id", req.OwnerID),
			zap.String("fact_name", fact.name),
			zap.Any("submitted", req.FactValue))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result *SubmitFactResult
	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		scope, created, err := s.resolveScope(ctx, req, fact)
		if err != nil {
			return err
		}

		changed := created
		if fact.misc {
			changed, err = s.factRepo.Upsert(ctx, scope.ID, fact.name, fact.value)
			if err != nil {
				return err
			}
		} else if !created {
			changed, err = s.scopeRepo.UpdateField(ctx, scope.ID, fact.field, fact.value)
			if err != nil {
				return err
			}
		}

		result = &SubmitFactResult{
			ScopeID:         scope.ID,
			CreatedNewScope: created,
			FactName:        fact.name,
			Field:           fact.field,
			Value:           fact.value,
			Misc:            fact.misc,
			Ambiguous:       fact.ambiguous,
			Changed:         changed,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit fact",
			zap.String("owner_id", req.OwnerID),
			zap.String("fact_name", fact.name),
			zap.Error(err))
		return nil, mapStorageError("submit fact", err)
	}

	if result.CreatedNewScope {
		s.logger.Info("Project scope created",
			zap.String("owner_id", req.OwnerID),
			zap.String("scope_id", result.ScopeID.String()))
	}
	s.logger.Debug("Fact recorded",
		zap.String("scope_id", result.ScopeID.String()),
		zap.String("fact_name", fact.name),
		zap.Bool("misc", fact.misc),
		zap.Bool("changed", result.Changed))

	return result, nil
}

// resolveScope finds the scope a fact belongs to. When a new scope is created
// a recognized fact is written as part of the insert.
func (s *scopeLedger) resolveScope(ctx context.Context, req *SubmitFactRequest, fact *coercedFact) (*models.ScopeRecord, bool, error) {
	if req.ScopeID != nil {
		scope, err := s.scopeRepo.GetByIDForUpdate(ctx, *req.ScopeID)
		if err != nil {
			return nil, false, err
		}
		if err := checkOwner(scope, req.OwnerID, *req.ScopeID); err != nil {
			return nil, false, err
		}
		return scope, false, nil
	}

	if err := s.scopeRepo.LockOwner(ctx, req.OwnerID); err != nil {
		return nil, false, err
	}

	if !req.NewProject {
		active, err := s.scopeRepo.GetActiveByOwner(ctx, req.OwnerID)
		if err != nil {
			return nil, false, err
		}
		if active != nil {
			return active, false, nil
		}
	}

	scope := &models.ScopeRecord{
		OwnerID: req.OwnerID,
		Status:  models.ScopeStatusNew,
	}
	if !fact.misc {
		switch v := fact.value.(type) {
		case bool:
			scope.SetBool(fact.field, v)
		case string:
			scope.SetText(fact.field, v)
		}
	}
	if err := s.scopeRepo.Create(ctx, scope); err != nil {
		return nil, false, err
	}
	return scope, true, nil
}

func (s *scopeLedger) GetScope(ctx context.Context, ownerID string, scopeID uuid.UUID) (*models.ScopeRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx = s.db.WithPool(ctx)

	scope, err := s.scopeRepo.GetByID(ctx, scopeID)
	if err != nil {
		return nil, mapStorageError("get scope", err)
	}
	if err := checkOwner(scope, ownerID, scopeID); err != nil {
		return nil, err
	}

	if err := s.loadDetails(ctx, scope); err != nil {
		return nil, mapStorageError("get scope", err)
	}
	return scope, nil
}

func (s *scopeLedger) GetLatestScope(ctx context.Context, ownerID string) (*models.ScopeRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", apperrors.ErrInvalidParameters)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx = s.db.WithPool(ctx)

	scope, err := s.scopeRepo.GetLatestByOwner(ctx, ownerID)
	if err != nil {
		return nil, mapStorageError("get latest scope", err)
	}
	if scope == nil {
		return nil, fmt.Errorf("%w: owner %s has no project scope", apperrors.ErrNotFound, ownerID)
	}

	if err := s.loadDetails(ctx, scope); err != nil {
		return nil, mapStorageError("get latest scope", err)
	}
	return scope, nil
}

func (s *scopeLedger) SetStatus(ctx context.Context, ownerID string, scopeID uuid.UUID, status models.ScopeStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		scope, err := s.scopeRepo.GetByIDForUpdate(ctx, scopeID)
		if err != nil {
			return err
		}
		if err := checkOwner(scope, ownerID, scopeID); err != nil {
			return err
		}
		_, err = s.scopeRepo.UpdateField(ctx, scopeID, models.FieldStatus, string(status))
		return err
	})
	if err != nil {
		return mapStorageError("set scope status", err)
	}

	s.logger.Info("Project scope status changed",
		zap.String("scope_id", scopeID.String()),
		zap.String("status", string(status)))
	return nil
}

func (s *scopeLedger) loadDetails(ctx context.Context, scope *models.ScopeRecord) error {
	misc, err := s.factRepo.GetByScope(ctx, scope.ID)
	if err != nil {
		return err
	}
	images, err := s.imageRepo.GetByScope(ctx, scope.ID)
	if err != nil {
		return err
	}
	scope.Misc = misc
	scope.Images = images
	return nil
}

func (s *scopeLedger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// checkOwner rejects a missing scope or one owned by someone else.
func checkOwner(scope *models.ScopeRecord, ownerID string, scopeID uuid.UUID) error {
	if scope == nil {
		return fmt.Errorf("%w: project scope %s", apperrors.ErrNotFound, scopeID)
	}
	if scope.OwnerID != ownerID {
		return fmt.Errorf("%w: project scope %s belongs to another owner", apperrors.ErrPermissionDenied, scopeID)
	}
	return nil
}

// coerceFact validates a fact and converts its value to the stored type.
func coerceFact(name string, value any) (*coercedFact, error) {
	normalized := models.NormalizeFactName(name)
	if normalized == "" {
		return nil, fmt.Errorf("%w: fact_name is required", apperrors.ErrInvalidFact)
	}

	// Boolean columns never reject a value; null falls through to false.
	field, ok := models.LookupField(normalized)
	if ok && field.IsBoolean() {
		b, ambiguous := coerceBool(value)
		return &coercedFact{name: normalized, field: field, value: b, ambiguous: ambiguous}, nil
	}

	if isNullValue(value) {
		return nil, fmt.Errorf("%w: %s has no value", apperrors.ErrInvalidFact, normalized)
	}
	if !ok {
		return &coercedFact{name: normalized, misc: true, value: value}, nil
	}

	text, ok := jsonutil.FlexibleString(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be rendered as text", apperrors.ErrInvalidFact, normalized)
	}
	return &coercedFact{name: normalized, field: field, value: text}, nil
}

// coerceBool maps a submitted value onto a boolean column. Anything other than
// a bool or one of true/yes/false/no is stored as false and flagged ambiguous.
func coerceBool(value any) (result, ambiguous bool) {
	switch v := value.(type) {
	case bool:
		return v, false
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, false
		case "false", "no":
			return false, false
		}
	}
	return false, true
}

func isNullValue(value any) bool {
	if value == nil {
		return true
	}
	if raw, ok := value.(json.RawMessage); ok {
		return strings.TrimSpace(string(raw)) == "null"
	}
	return false
}

// mapStorageError converts a failed backing-store call into the error taxonomy.
// Domain errors pass through and a failed commit is indeterminate. Everything
// else, deadline expiry included, is storage unavailability.
func mapStorageError(op string, err error) error {
	for _, domain := range []error{
		apperrors.ErrNotFound,
		apperrors.ErrPermissionDenied,
		apperrors.ErrInvalidFact,
		apperrors.ErrInvalidParameters,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}

	var commitErr *database.CommitError
	if errors.As(err, &commitErr) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrIndeterminate, err)
	}

	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStorageUnavailable, err)
}
