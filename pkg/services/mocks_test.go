package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/protocol"
	"github.com/instabids/scope-engine/pkg/storage"
)

// ============================================================================
// TxRunner
// ============================================================================

type mockTxRunner struct {
	commitErr  error
	txCalls    int
	rolledBack int
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txCalls++
	if err := fn(ctx); err != nil {
		m.rolledBack++
		return err
	}
	if m.commitErr != nil {
		return &database.CommitError{Err: m.commitErr}
	}
	return nil
}

func (m *mockTxRunner) WithPool(ctx context.Context) context.Context {
	return ctx
}

// ============================================================================
// Repositories
// ============================================================================

type mockScopeRepo struct {
	mu     sync.Mutex
	scopes map[uuid.UUID]*models.ScopeRecord
	clock  time.Time

	createErr error
	getErr    error
	updateErr error
	lockErr   error
	// blockLock makes LockOwner wait for the context to end.
	blockLock bool

	lockedOwners []string
	createCalls  int
	updateCalls  int
}

func newMockScopeRepo() *mockScopeRepo {
	return &mockScopeRepo{
		scopes: make(map[uuid.UUID]*models.ScopeRecord),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockScopeRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockScopeRepo) Create(ctx context.Context, scope *models.ScopeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if scope.ID == uuid.Nil {
		scope.ID = uuid.New()
	}
	now := m.tick()
	scope.CreatedAt = now
	scope.UpdatedAt = now
	stored := *scope
	m.scopes[scope.ID] = &stored
	return nil
}

// seed stores a scope directly and returns its id.
func (m *mockScopeRepo) seed(ownerID string, status models.ScopeStatus) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	now := m.tick()
	m.scopes[id] = &models.ScopeRecord{ID: id, OwnerID: ownerID, Status: status, CreatedAt: now, UpdatedAt: now}
	return id
}

func (m *mockScopeRepo) get(id uuid.UUID) *models.ScopeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[id]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

func (m *mockScopeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.get(id), nil
}

func (m *mockScopeRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScopeRecord, error) {
	return m.GetByID(ctx, id)
}

func (m *mockScopeRepo) newest(ownerID string, activeOnly bool) *models.ScopeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.ScopeRecord
	for _, s := range m.scopes {
		if s.OwnerID != ownerID || (activeOnly && !s.Status.IsActive()) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	c := *best
	return &c
}

func (m *mockScopeRepo) GetActiveByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.newest(ownerID, true), nil
}

func (m *mockScopeRepo) GetLatestByOwner(ctx context.Context, ownerID string) (*models.ScopeRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.newest(ownerID, false), nil
}

func (m *mockScopeRepo) UpdateField(ctx context.Context, id uuid.UUID, field models.ScopeField, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return false, m.updateErr
	}
	s, ok := m.scopes[id]
	if !ok {
		return false, nil
	}
	if s.Value(field) == value {
		return false, nil
	}
	switch v := value.(type) {
	case bool:
		s.SetBool(field, v)
	case string:
		s.SetText(field, v)
	default:
		return false, fmt.Errorf("unexpected value type %T", value)
	}
	s.UpdatedAt = m.tick()
	return true, nil
}

func (m *mockScopeRepo) LockOwner(ctx context.Context, ownerID string) error {
	if m.blockLock {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockedOwners = append(m.lockedOwners, ownerID)
	return m.lockErr
}

type mockFactRepo struct {
	facts     map[uuid.UUID]models.MiscFacts
	upsertErr error
	getErr    error
}

func newMockFactRepo() *mockFactRepo {
	return &mockFactRepo{facts: make(map[uuid.UUID]models.MiscFacts)}
}

func (m *mockFactRepo) Upsert(ctx context.Context, scopeID uuid.UUID, name string, value any) (bool, error) {
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	if m.facts[scopeID] == nil {
		m.facts[scopeID] = make(models.MiscFacts)
	}
	if old, ok := m.facts[scopeID][name]; ok && fmt.Sprint(old) == fmt.Sprint(value) {
		return false, nil
	}
	m.facts[scopeID][name] = value
	return true, nil
}

func (m *mockFactRepo) GetByScope(ctx context.Context, scopeID uuid.UUID) (models.MiscFacts, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(models.MiscFacts)
	for k, v := range m.facts[scopeID] {
		out[k] = v
	}
	return out, nil
}

type mockImageRepo struct {
	assets    []*models.ImageAsset
	upsertErr error
}

func (m *mockImageRepo) Upsert(ctx context.Context, asset *models.ImageAsset) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	m.assets = append(m.assets, asset)
	return nil
}

func (m *mockImageRepo) GetByScope(ctx context.Context, scopeID uuid.UUID) ([]models.ImageAsset, error) {
	out := make([]models.ImageAsset, 0)
	for _, a := range m.assets {
		if a.ScopeID != nil && *a.ScopeID == scopeID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type mockConversationRepo struct {
	convs   map[string]*models.Conversation
	saveErr error
}

func (m *mockConversationRepo) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return m.convs[id], nil
}

func (m *mockConversationRepo) Save(ctx context.Context, conv *models.Conversation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.convs == nil {
		m.convs = make(map[string]*models.Conversation)
	}
	m.convs[conv.ID] = conv
	return nil
}

// ============================================================================
// Object store
// ============================================================================

type uploadCall struct {
	key  string
	data []byte
	opts storage.UploadOptions
}

type mockObjectStore struct {
	uploads   []uploadCall
	uploadErr error
}

func (m *mockObjectStore) Upload(ctx context.Context, key string, data []byte, opts storage.UploadOptions) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.uploads = append(m.uploads, uploadCall{key: key, data: data, opts: opts})
	return nil
}

func (m *mockObjectStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (m *mockObjectStore) Close() error {
	return nil
}

// ============================================================================
// Conversation store
// ============================================================================

type memoryConversationStore struct {
	mu       sync.Mutex
	sessions map[string]*protocol.Session
	saveErr  error
	loadErr  error
	saves    int
}

func newMemoryConversationStore() *memoryConversationStore {
	return &memoryConversationStore{sessions: make(map[string]*protocol.Session)}
}

func (m *memoryConversationStore) Load(ctx context.Context, id string) (*protocol.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memoryConversationStore) Save(ctx context.Context, sess *protocol.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.sessions[sess.ConversationID] = sess.Clone()
	return nil
}

func (m *memoryConversationStore) session(id string) *protocol.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}
