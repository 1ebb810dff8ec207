package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/services"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceErrorBody is the JSON body written for a failed command.
type ServiceErrorBody struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	IdentifiersValid bool   `json:"identifiers_valid"`
	UpstreamStatus   int    `json:"upstream_status,omitempty"`
}

var codeStatus = map[string]int{
	apperrors.CodeStorageUnavailable:   http.StatusServiceUnavailable,
	apperrors.CodeIndeterminate:        http.StatusInternalServerError,
	apperrors.CodePermissionDenied:     http.StatusForbidden,
	apperrors.CodeNotFound:             http.StatusNotFound,
	apperrors.CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	apperrors.CodeInvalidEncoding:      http.StatusBadRequest,
	apperrors.CodeUploadFailed:         http.StatusBadGateway,
	apperrors.CodeInvalidParameters:    http.StatusBadRequest,
	apperrors.CodeInvalidTransition:    http.StatusConflict,
}

// StatusForError maps a service error to its HTTP status and error code.
// Errors outside the taxonomy map to 500 internal_error.
func StatusForError(err error) (int, string) {
	code := apperrors.Code(err)
	if status, ok := codeStatus[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, "internal_error"
}

// WriteServiceError writes err as a ServiceErrorBody and returns any encoding error.
func WriteServiceError(w http.ResponseWriter, err error) error {
	status, code := StatusForError(err)
	body := ServiceErrorBody{
		Error:            code,
		Message:          err.Error(),
		IdentifiersValid: true,
	}
	if code == "internal_error" {
		body.Message = "internal server error"
	}

	var cmdErr *services.CommandError
	if errors.As(err, &cmdErr) {
		body.IdentifiersValid = cmdErr.IdentifiersValid
	}
	var uploadErr *apperrors.UploadError
	if errors.As(err, &uploadErr) {
		body.UpstreamStatus = uploadErr.Status
	}

	return WriteJSON(w, status, body)
}
