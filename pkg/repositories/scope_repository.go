package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/models"
)

// ScopeRepository provides data access for project scopes.
type ScopeRepository interface {
	Create(ctx context.Context, scope *models.ScopeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error)
	GetActiveByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error)
	GetLatestByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error)
	UpdateField(ctx context.Context, id uuid.UUID, field models.ScopeField, value any) (bool, error)
	LockOwner(ctx context.Context, ownerID string) error
}

type scopeRepository struct{}

// NewScopeRepository creates a new ScopeRepository.
func NewScopeRepository() ScopeRepository {
	return &scopeRepository{}
}

var _ ScopeRepository = (*scopeRepository)(nil)

const scopeColumns = `
	id, owner_id, title, description, budget_range, timeline, zip_code,
	contractor_notes, group_bidding_preference, image_url, status, summary,
	created_at, updated_at`

func (r *scopeRepository) Create(ctx context.Context, scope *models.ScopeRecord) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if scope.ID == uuid.Nil {
		scope.ID = uuid.New()
	}
	if scope.Status == "" {
		scope.Status = models.ScopeStatusNew
	}
	now := time.Now()
	scope.CreatedAt = now
	scope.UpdatedAt = now

	query := `
		INSERT INTO project_scopes (
			id, owner_id, title, description, budget_range, timeline, zip_code,
			contractor_notes, group_bidding_preference, image_url, status, summary,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := q.QueryRow(ctx, query,
		scope.ID, scope.OwnerID, scope.Title, scope.Description, scope.BudgetRange,
		scope.Timeline, scope.ZipCode, scope.ContractorNotes, scope.GroupBiddingPreference,
		scope.ImageURL, string(scope.Status), scope.Summary, scope.CreatedAt, scope.UpdatedAt,
	).Scan(&scope.CreatedAt, &scope.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project scope: %w", err)
	}

	return nil
}

func (r *scopeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error) {
	return r.getOne(ctx, `SELECT`+scopeColumns+` FROM project_scopes WHERE id = $1`, id)
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *scopeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error) {
	return r.getOne(ctx, `SELECT`+scopeColumns+` FROM project_scopes WHERE id = $1 FOR UPDATE`, id)
}

// GetActiveByOwner returns the owner's newest scope that is not finalized, or nil.
func (r *scopeRepository) GetActiveByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error) {
	return r.getOne(ctx, `SELECT`+scopeColumns+`
		FROM project_scopes
		WHERE owner_id = $1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1`, ownerID, string(models.ScopeStatusFinalized))
}

// GetLatestByOwner returns the owner's newest scope regardless of status, or nil.
func (r *scopeRepository) GetLatestByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error) {
	return r.getOne(ctx, `SELECT`+scopeColumns+`
		FROM project_scopes
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, ownerID)
}

// UpdateField writes a single recognized column. It reports false when the row
// already held the value, in which case updated_at is left alone.
func (r *scopeRepository) UpdateField(ctx context.Context, id uuid.UUID, field models.ScopeField, value any) (bool, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	column, err := scopeColumn(field)
	if err != nil {
		return false, err
	}

	// column comes from a closed set, never from caller input.
	query := fmt.Sprintf(`
		UPDATE project_scopes
		SET %[1]s = $2, updated_at = now()
		WHERE id = $1 AND %[1]s IS DISTINCT FROM $2`, column)

	result, err := q.Exec(ctx, query, id, value)
	if err != nil {
		return false, fmt.Errorf("failed to update project scope %s: %w", column, err)
	}

	return result.RowsAffected() > 0, nil
}

// LockOwner takes a transaction-scoped advisory lock keyed by owner id.
// Concurrent create-if-absent calls for the same owner serialize on it.
func (r *scopeRepository) LockOwner(ctx context.Context, ownerID string) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}
	return nil
}

func (r *scopeRepository) getOne(ctx context.Context, query string, args ...any) (*models.ScopeRecord, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	scope, err := scanScopeRow(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return scope, nil
}

func scopeColumn(field models.ScopeField) (string, error) {
	for _, f := range models.ScopeFields {
		if f == field {
			return string(f), nil
		}
	}
	return "", fmt.Errorf("unknown scope field %q", field)
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanScopeRow(row pgx.Row) (*models.ScopeRecord, error) {
	var s models.ScopeRecord
	var status string

	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Title, &s.Description, &s.BudgetRange, &s.Timeline, &s.ZipCode,
		&s.ContractorNotes, &s.GroupBiddingPreference, &s.ImageURL, &status, &s.Summary,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project scope: %w", err)
	}

	s.Status = models.ScopeStatus(status)
	return &s, nil
}
