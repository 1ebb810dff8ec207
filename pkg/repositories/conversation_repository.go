package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/models"
)

// ConversationRepository persists protocol state per conversation.
type ConversationRepository interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Save(ctx context.Context, conv *models.Conversation) error
}

type conversationRepository struct{}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository() ConversationRepository {
	return &conversationRepository{}
}

var _ ConversationRepository = (*conversationRepository)(nil)

// Get returns the conversation or nil when none was saved yet.
func (r *conversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var c models.Conversation
	err := q.QueryRow(ctx, `
		SELECT id, owner_id, scope_id, state, created_at, updated_at
		FROM conversation_sessions
		WHERE id = $1`, id).Scan(&c.ID, &c.OwnerID, &c.ScopeID, &c.State, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &c, nil
}

func (r *conversationRepository) Save(ctx context.Context, conv *models.Conversation) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO conversation_sessions (id, owner_id, scope_id, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			scope_id = EXCLUDED.scope_id,
			state = EXCLUDED.state,
			updated_at = now()
		RETURNING created_at, updated_at`

	err := q.QueryRow(ctx, query, conv.ID, conv.OwnerID, conv.ScopeID, []byte(conv.State)).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	return nil
}
