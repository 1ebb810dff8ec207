package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the services and both transports. Wrap them with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrIndeterminate        = errors.New("outcome indeterminate")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrUploadFailed         = errors.New("upload failed")
	ErrInvalidFact          = errors.New("invalid fact")
	ErrInvalidTransition    = errors.New("invalid protocol transition")
	ErrInvalidParameters    = errors.New("invalid parameters")
)

// UploadError carries the upstream status of a failed object upload.
// It matches ErrUploadFailed with errors.Is.
type UploadError struct {
	Status int
	Detail string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upload failed: %s", e.Detail)
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
