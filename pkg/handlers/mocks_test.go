package handlers

import (
	"context"
	"sync"

	"github.com/instabids/scope-engine/pkg/services"
)

type mockConversations struct {
	mu       sync.Mutex
	commands []*services.Command
	result   *services.Result
	err      error
}

func (m *mockConversations) Execute(ctx context.Context, cmd *services.Command) (*services.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.Result{Kind: cmd.Kind, ConversationID: cmd.ConversationID, StateSaved: true, Message: "ok"}, nil
}
