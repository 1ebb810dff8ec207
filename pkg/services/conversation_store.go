package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/protocol"
	"github.com/instabids/scope-engine/pkg/repositories"
)

// ConversationStore persists protocol sessions between operations.
type ConversationStore interface {
	// Load returns the saved session, or nil when the conversation is new.
	Load(ctx context.Context, conversationID string) (*protocol.Session, error)
	Save(ctx context.Context, sess *protocol.Session) error
}

// ============================================================================
// Redis
// ============================================================================

const conversationKeyPrefix = "scope-engine:conversation:"

// redisKV is the subset of *redis.Client the store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

var _ redisKV = (*redis.Client)(nil)

type redisConversationStore struct {
	client redisKV
	ttl    time.Duration
}

// NewRedisConversationStore keeps sessions in Redis. Every save refreshes the TTL.
func NewRedisConversationStore(client *redis.Client, ttl time.Duration) ConversationStore {
	return &redisConversationStore{client: client, ttl: ttl}
}

var _ ConversationStore = (*redisConversationStore)(nil)

func conversationKey(id string) string {
	return conversationKeyPrefix + id
}

func (s *redisConversationStore) Load(ctx context.Context, conversationID string) (*protocol.Session, error) {
	raw, err := s.client.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var sess protocol.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &sess, nil
}

func (s *redisConversationStore) Save(ctx context.Context, sess *protocol.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(sess.ConversationID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// ============================================================================
// Postgres
// ============================================================================

type pgConversationStore struct {
	db   TxRunner
	repo repositories.ConversationRepository
}

// NewPostgresConversationStore keeps sessions in the conversation_sessions table.
func NewPostgresConversationStore(db TxRunner, repo repositories.ConversationRepository) ConversationStore {
	return &pgConversationStore{db: db, repo: repo}
}

var _ ConversationStore = (*pgConversationStore)(nil)

func (s *pgConversationStore) Load(ctx context.Context, conversationID string) (*protocol.Session, error) {
	conv, err := s.repo.Get(s.db.WithPool(ctx), conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}

	var sess protocol.Session
	if err := json.Unmarshal(conv.State, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}
	return &sess, nil
}

func (s *pgConversationStore) Save(ctx context.Context, sess *protocol.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	conv := &models.Conversation{
		ID:      sess.ConversationID,
		ScopeID: sess.ScopeID,
		State:   raw,
	}
	if sess.OwnerID != "" {
		owner := sess.OwnerID
		conv.OwnerID = &owner
	}
	return s.repo.Save(s.db.WithPool(ctx), conv)
}
