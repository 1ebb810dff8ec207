package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/config"
)

// newWriterFunc opens a writer for key with the given attributes applied.
type newWriterFunc func(ctx context.Context, key string, opts UploadOptions) io.WriteCloser

type gcsStore struct {
	logger        *zap.Logger
	client        *gcs.Client
	bucket        string
	mode          config.StorageMode
	emulatorHost  string
	publicBaseURL string
	cdnDomain     string
	newWriter     newWriterFunc
}

var _ ObjectStore = (*gcsStore)(nil)

// NewGCSStore creates an ObjectStore backed by a GCS bucket. In emulator mode
// the client talks to fake-gcs without authentication.
func NewGCSStore(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s := newGCSStore(cfg, logger)
	s.client = client
	s.newWriter = func(ctx context.Context, key string, opts UploadOptions) io.WriteCloser {
		w := client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = opts.ContentType
		w.CacheControl = opts.CacheControl
		return w
	}

	s.logger.Info("Object storage initialized",
		zap.String("mode", string(s.mode)),
		zap.String("bucket", s.bucket),
		zap.String("emulator_host", s.emulatorHost),
		zap.String("public_base_url", s.publicBaseURL),
		zap.String("cdn_domain", s.cdnDomain))

	return s, nil
}

func newGCSStore(cfg *config.StorageConfig, logger *zap.Logger) *gcsStore {
	emulatorHost := strings.TrimRight(strings.TrimSpace(config.ResolveEmulatorHost(cfg.EmulatorHost)), "/")

	publicBaseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if publicBaseURL == "" && cfg.Mode == config.StorageModeGCSEmulator {
		publicBaseURL = emulatorHost
	}

	return &gcsStore{
		logger:        logger.Named("storage"),
		bucket:        cfg.Bucket,
		mode:          cfg.Mode,
		emulatorHost:  emulatorHost,
		publicBaseURL: publicBaseURL,
		cdnDomain:     strings.Trim(strings.TrimSpace(cfg.CDNDomain), "/"),
	}
}

func newClient(ctx context.Context, cfg *config.StorageConfig) (*gcs.Client, error) {
	switch cfg.Mode {
	case config.StorageModeGCS:
		opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		return gcs.NewClient(ctx, opts...)
	case config.StorageModeGCSEmulator:
		// The client library reads the emulator endpoint from the environment.
		if err := os.Setenv("STORAGE_EMULATOR_HOST", config.ResolveEmulatorHost(cfg.EmulatorHost)); err != nil {
			return nil, err
		}
		return gcs.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}

// Upload writes data to key, overwriting any existing object.
func (s *gcsStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	w := s.newWriter(ctx, key, opts)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return s.classify(ctx, key, err)
	}
	// GCS reports most failures on Close, when the upload is finalized.
	if err := w.Close(); err != nil {
		return s.classify(ctx, key, err)
	}
	return nil
}

// classify maps a client error to the domain taxonomy.
func (s *gcsStore) classify(ctx context.Context, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: upload of %s timed out: %v", apperrors.ErrStorageUnavailable, key, err)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: upload of %s cancelled: %v", apperrors.ErrStorageUnavailable, key, err)
	}

	uploadErr := &apperrors.UploadError{Detail: err.Error(), Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		uploadErr.Status = apiErr.Code
		if apiErr.Message != "" {
			uploadErr.Detail = apiErr.Message
		}
	}

	s.logger.Warn("Object upload failed",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("status", uploadErr.Status),
		zap.Error(err))

	return uploadErr
}

// PublicURL resolves the URL clients use to fetch key: the CDN domain when
// configured, then the emulator media endpoint, then the public base URL,
// then the default storage.googleapis.com URL.
func (s *gcsStore) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	}
	if s.mode == config.StorageModeGCSEmulator && s.publicBaseURL != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.publicBaseURL, url.PathEscape(s.bucket), url.PathEscape(key))
	}
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *gcsStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
