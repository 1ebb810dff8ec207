package apperrors

import "errors"

// Error codes reported to drivers by both transports.
const (
	CodeStorageUnavailable   = "storage_unavailable"
	CodeIndeterminate        = "indeterminate"
	CodePermissionDenied     = "permission_denied"
	CodeNotFound             = "not_found"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeInvalidEncoding      = "invalid_encoding"
	CodeUploadFailed         = "upload_failed"
	CodeInvalidParameters    = "invalid_parameters"
	CodeInvalidTransition    = "invalid_transition"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrIndeterminate, CodeIndeterminate},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrNotFound, CodeNotFound},
	{ErrUnsupportedMediaType, CodeUnsupportedMediaType},
	{ErrInvalidEncoding, CodeInvalidEncoding},
	{ErrUploadFailed, CodeUploadFailed},
	{ErrInvalidParameters, CodeInvalidParameters},
	{ErrInvalidFact, CodeInvalidParameters},
	{ErrInvalidTransition, CodeInvalidTransition},
}

// Code returns the error code for err, or "" when err is not part of the taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
