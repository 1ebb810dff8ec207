package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/models"
)

// ScopeFactRepository provides data access for facts without a dedicated column.
type ScopeFactRepository interface {
	Upsert(ctx context.Context, scopeID uuid.UUID, name string, value any) (bool, error)
	GetByScope(ctx context.Context, scopeID uuid.UUID) (models.MiscFacts, error)
}

type scopeFactRepository struct{}

// NewScopeFactRepository creates a new ScopeFactRepository.
func NewScopeFactRepository() ScopeFactRepository {
	return &scopeFactRepository{}
}

var _ ScopeFactRepository = (*scopeFactRepository)(nil)

// Upsert stores value under (scopeID, name), replacing any previous value.
// It reports false when the stored value was already equal.
func (r *scopeFactRepository) Upsert(ctx context.Context, scopeID uuid.UUID, name string, value any) (bool, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal fact value: %w", err)
	}

	query := `
		INSERT INTO project_scope_facts (scope_id, fact_name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope_id, fact_name)
		DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
		WHERE project_scope_facts.value IS DISTINCT FROM EXCLUDED.value`

	result, err := q.Exec(ctx, query, scopeID, name, valueJSON)
	if err != nil {
		return false, fmt.Errorf("failed to upsert scope fact: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *scopeFactRepository) GetByScope(ctx context.Context, scopeID uuid.UUID) (models.MiscFacts, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := q.Query(ctx, `
		SELECT fact_name, value
		FROM project_scope_facts
		WHERE scope_id = $1
		ORDER BY fact_name`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scope facts: %w", err)
	}
	defer rows.Close()

	facts := make(models.MiscFacts)
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan scope fact: %w", err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scope fact %q: %w", name, err)
		}
		facts[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scope facts: %w", err)
	}

	return facts, nil
}
