package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/services"
)

func setupConversationHandlerTest(t *testing.T) (*http.ServeMux, *mockConversations) {
	t.Helper()
	conv := &mockConversations{}
	mux := http.NewServeMux()
	NewConversationHandler(conv, zap.NewNop()).RegisterRoutes(mux)
	return mux, conv
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestConversationHandler_ExecuteCommand(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)

	body := `{"kind":"submit_fact","owner_id":"owner-1","submit_fact":{"fact_name":"zip","fact_value":94110}}`
	rec := serve(mux, http.MethodPost, "/api/conversations/conv-1/commands", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, conv.commands, 1)

	cmd := conv.commands[0]
	assert.Equal(t, services.CommandSubmitFact, cmd.Kind)
	assert.Equal(t, "conv-1", cmd.ConversationID)
	assert.Equal(t, "owner-1", cmd.OwnerID)
	require.NotNil(t, cmd.SubmitFact)
	assert.Equal(t, "zip", cmd.SubmitFact.FactName)
	assert.Equal(t, float64(94110), cmd.SubmitFact.FactValue)

	var res services.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "conv-1", res.ConversationID)
	assert.True(t, res.StateSaved)
}

func TestConversationHandler_PathOverridesBodyConversation(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)

	rec := serve(mux, http.MethodPost, "/api/conversations/from-path/commands",
		`{"kind":"begin_turn","conversation_id":"from-body","begin_turn":{"has_image":false}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-path", conv.commands[0].ConversationID)
}

func TestConversationHandler_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", `{"kind":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, conv := setupConversationHandlerTest(t)

			req := httptest.NewRequest(http.MethodPost, "/api/conversations/c/commands", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, conv.commands)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "invalid_request", body["error"])
		})
	}
}

func TestConversationHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantValid  bool
	}{
		{
			name: "failed creation",
			err: &services.CommandError{
				Kind: services.CommandSubmitFact,
				Err:  fmt.Errorf("create: %w", apperrors.ErrStorageUnavailable),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "storage_unavailable",
			wantValid:  false,
		},
		{
			name: "confirm too early",
			err: &services.CommandError{
				Kind:             services.CommandConfirmScope,
				IdentifiersValid: true,
				Err:              apperrors.ErrInvalidTransition,
			},
			wantStatus: http.StatusConflict,
			wantCode:   "invalid_transition",
			wantValid:  true,
		},
		{
			name: "bad image type",
			err: &services.CommandError{
				Kind:             services.CommandIngestImage,
				IdentifiersValid: true,
				Err:              apperrors.ErrUnsupportedMediaType,
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "unsupported_media_type",
			wantValid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, conv := setupConversationHandlerTest(t)
			conv.err = tt.err

			rec := serve(mux, http.MethodPost, "/api/conversations/c/commands", `{"kind":"confirm_scope"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ServiceErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantValid, body.IdentifiersValid)
		})
	}
}

func TestConversationHandler_GetLatestScope(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)

	rec := serve(mux, http.MethodGet, "/api/owners/owner-1/scopes/latest", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, conv.commands, 1)
	assert.Equal(t, services.CommandReviewScope, conv.commands[0].Kind)
	assert.Equal(t, "owner-1", conv.commands[0].OwnerID)
	assert.Empty(t, conv.commands[0].ScopeID)
	assert.Empty(t, conv.commands[0].ConversationID)
}

func TestConversationHandler_GetScope(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)
	scopeID := uuid.New()

	rec := serve(mux, http.MethodGet, "/api/owners/owner-1/scopes/"+scopeID.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, conv.commands, 1)
	assert.Equal(t, scopeID.String(), conv.commands[0].ScopeID)
}

func TestConversationHandler_GetScope_InvalidID(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)

	rec := serve(mux, http.MethodGet, "/api/owners/owner-1/scopes/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, conv.commands)
}

func TestConversationHandler_GetScope_NotFound(t *testing.T) {
	mux, conv := setupConversationHandlerTest(t)
	conv.err = &services.CommandError{
		Kind:             services.CommandReviewScope,
		IdentifiersValid: true,
		Err:              fmt.Errorf("owner has no scope: %w", apperrors.ErrNotFound),
	}

	rec := serve(mux, http.MethodGet, "/api/owners/owner-1/scopes/latest", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
