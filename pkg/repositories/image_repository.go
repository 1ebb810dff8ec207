package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/models"
)

// ImageRepository provides data access for the uploaded image catalogue.
type ImageRepository interface {
	Upsert(ctx context.Context, asset *models.ImageAsset) error
	GetByScope(ctx context.Context, scopeID uuid.UUID) ([]models.ImageAsset, error)
}

type imageRepository struct{}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository() ImageRepository {
	return &imageRepository{}
}

var _ ImageRepository = (*imageRepository)(nil)

// Upsert catalogues an asset keyed by its storage path. Re-uploading to the same
// path keeps the original id and created_at.
func (r *imageRepository) Upsert(ctx context.Context, asset *models.ImageAsset) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	asset.UpdatedAt = now
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
		asset.CreatedAt = now
	}

	query := `
		INSERT INTO project_images (id, scope_id, mime_type, path, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (path)
		DO UPDATE SET
			scope_id = EXCLUDED.scope_id,
			mime_type = EXCLUDED.mime_type,
			url = EXCLUDED.url,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := q.QueryRow(ctx, query,
		asset.ID, asset.ScopeID, asset.MimeType, asset.Path, asset.URL, asset.CreatedAt, asset.UpdatedAt,
	).Scan(&asset.ID, &asset.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project image: %w", err)
	}

	return nil
}

func (r *imageRepository) GetByScope(ctx context.Context, scopeID uuid.UUID) ([]models.ImageAsset, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := q.Query(ctx, `
		SELECT id, scope_id, mime_type, path, url, created_at, updated_at
		FROM project_images
		WHERE scope_id = $1
		ORDER BY created_at`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project images: %w", err)
	}
	defer rows.Close()

	assets := make([]models.ImageAsset, 0)
	for rows.Next() {
		var a models.ImageAsset
		if err := rows.Scan(&a.ID, &a.ScopeID, &a.MimeType, &a.Path, &a.URL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project image: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project images: %w", err)
	}

	return assets, nil
}
