package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/config"
	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/repositories"
	"github.com/instabids/scope-engine/pkg/storage"
)

// imageExtensions lists the accepted MIME types and their object key extensions.
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// IngestImageRequest is one inline image to be stored.
type IngestImageRequest struct {
	// ScopeHint names the object after the scope it belongs to when set.
	ScopeHint   *uuid.UUID
	ImageBase64 string
	MimeType    string
}

// IngestImageResult describes a stored image.
type IngestImageResult struct {
	URL      string     `json:"url"`
	Key      string     `json:"key"`
	MimeType string     `json:"mime_type"`
	Bytes    int        `json:"bytes"`
	AssetID  *uuid.UUID `json:"asset_id,omitempty"`
	// Cataloged is false when the upload succeeded but the catalogue row could not be written.
	Cataloged bool `json:"cataloged"`
}

// ImageIntake validates, decodes and uploads images to object storage.
type ImageIntake interface {
	IngestImage(ctx context.Context, req *IngestImageRequest) (*IngestImageResult, error)
}

type imageIntake struct {
	store     storage.ObjectStore
	db        TxRunner
	imageRepo repositories.ImageRepository
	cfg       *config.StorageConfig
	logger    *zap.Logger
}

// NewImageIntake creates a new image intake.
func NewImageIntake(
	store storage.ObjectStore,
	db TxRunner,
	imageRepo repositories.ImageRepository,
	cfg *config.StorageConfig,
	logger *zap.Logger,
) ImageIntake {
	return &imageIntake{
		store:     store,
		db:        db,
		imageRepo: imageRepo,
		cfg:       cfg,
		logger:    logger.Named("image-intake"),
	}
}

var _ ImageIntake = (*imageIntake)(nil)

func (s *imageIntake) IngestImage(ctx context.Context, req *IngestImageRequest) (*IngestImageResult, error) {
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q (accepted: image/jpeg, image/png, image/gif, image/webp)", apperrors.ErrUnsupportedMediaType, req.MimeType)
	}

	data, err := decodeImage(req.ImageBase64, s.cfg.MaxImageBytes)
	if err != nil {
		return nil, err
	}

	name := uuid.NewString()
	if req.ScopeHint != nil {
		name = req.ScopeHint.String()
	}
	key := path.Join(s.cfg.KeyPrefix, name+"."+ext)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	err = s.store.Upload(ctx, key, data, storage.UploadOptions{
		ContentType:  mimeType,
		CacheControl: s.cfg.CacheControl,
	})
	if err != nil {
		s.logger.Error("Image upload failed",
			zap.String("key", key),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return nil, err
	}

	result := &IngestImageResult{
		URL:      s.store.PublicURL(key),
		Key:      key,
		MimeType: mimeType,
		Bytes:    len(data),
	}

	asset := &models.ImageAsset{
		ScopeID:  req.ScopeHint,
		MimeType: mimeType,
		Path:     key,
		URL:      result.URL,
	}
	if err := s.imageRepo.Upsert(s.db.WithPool(ctx), asset); err != nil {
		s.logger.Warn("Image uploaded but not catalogued",
			zap.String("key", key),
			zap.Error(err))
	} else {
		result.AssetID = &asset.ID
		result.Cataloged = true
	}

	s.logger.Info("Image stored",
		zap.String("key", key),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(data)),
		zap.Bool("cataloged", result.Cataloged))

	return result, nil
}

// decodeImage accepts standard base64 with or without a data URL prefix,
// embedded whitespace and missing padding.
func decodeImage(encoded string, maxBytes int) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(strings.ToLower(payload), "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(strings.ToLower(payload[:comma]), ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", apperrors.ErrInvalidEncoding)
		}
		payload = payload[comma+1:]
	}

	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: image data is empty", apperrors.ErrInvalidEncoding)
	}
	if rem := len(payload) % 4; rem != 0 {
		payload += strings.Repeat("=", 4-rem)
	}

	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", apperrors.ErrInvalidEncoding, maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidEncoding, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image data is empty", apperrors.ErrInvalidEncoding)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", apperrors.ErrInvalidEncoding, maxBytes)
	}
	return data, nil
}
