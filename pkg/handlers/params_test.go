package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestParseScopeID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pathValue  string
		wantOK     bool
		wantStatus int
		wantError  string
	}{
		{
			name:      "valid UUID",
			pathValue: "550e8400-e29b-41d4-a716-446655440000",
			wantOK:    true,
		},
		{
			name:       "invalid UUID",
			pathValue:  "not-a-uuid",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_project_scope_id",
		},
		{
			name:       "empty UUID",
			pathValue:  "",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_project_scope_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("sid", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseScopeID(rec, req, logger)

			if ok != tt.wantOK {
				t.Errorf("ParseScopeID() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if id.String() != tt.pathValue {
					t.Errorf("ParseScopeID() id = %v, want %v", id, tt.pathValue)
				}
				return
			}

			if id != uuid.Nil {
				t.Errorf("ParseScopeID() id = %v, want uuid.Nil", id)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("ParseScopeID() status = %v, want %v", rec.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("ParseScopeID() error = %v, want %v", resp["error"], tt.wantError)
			}
		})
	}
}

func TestParseOwnerID(t *testing.T) {
	logger := zap.NewNop()

	t.Run("opaque owner id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.SetPathValue("oid", "homeowner-42")
		rec := httptest.NewRecorder()

		id, ok := ParseOwnerID(rec, req, logger)
		if !ok || id != "homeowner-42" {
			t.Errorf("ParseOwnerID() = %q, %v; want homeowner-42, true", id, ok)
		}
	})

	t.Run("blank owner id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.SetPathValue("oid", "  ")
		rec := httptest.NewRecorder()

		if _, ok := ParseOwnerID(rec, req, logger); ok {
			t.Error("expected blank owner id to be rejected")
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestParseConversationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.SetPathValue("cid", " conv-9 ")
	rec := httptest.NewRecorder()

	id, ok := ParseConversationID(rec, req, zap.NewNop())
	if !ok || id != "conv-9" {
		t.Errorf("ParseConversationID() = %q, %v; want conv-9, true", id, ok)
	}
}
