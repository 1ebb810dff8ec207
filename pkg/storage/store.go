// Package storage uploads image objects to Google Cloud Storage (or a
// fake-gcs emulator) and resolves their public URLs.
package storage

import (
	"context"
)

// UploadOptions carries object metadata written with the upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectStore uploads objects and resolves their public URLs.
// Uploading to an existing key overwrites it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
	PublicURL(key string) string
	Close() error
}
