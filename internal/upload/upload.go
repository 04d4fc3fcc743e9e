// Package upload accepts image uploads and stores them in object storage.
package upload

import (
	"context"
	"io"
	"net/http"
	"path"
	"regexp"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes = 5 << 20

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

var ownerPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Store persists objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Result describes a stored upload.
type Result struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Service validates and stores uploads.
type Service struct {
	store    Store
	maxBytes int64
	log      *logging.Logger
}

func New(store Store, maxBytes int64, log *logging.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = logging.NewDefault("upload")
	}
	return &Service{store: store, maxBytes: maxBytes, log: log}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload reads r, checks its size and sniffed type, and stores it under
// uploads/<owner>/<uuid>.<ext>.
func (s *Service) Upload(ctx context.Context, owner string, r io.Reader) (Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Result{}, errors.InvalidInputf("read upload: %v", err)
	}
	if len(data) == 0 {
		return Result{}, errors.InvalidInput("file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return Result{}, errors.InvalidInputf("file exceeds %d bytes", s.maxBytes).WithDetails("max_bytes", s.maxBytes)
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Result{}, errors.InvalidInputf("unsupported file type %s", contentType)
	}

	owner = ownerPattern.ReplaceAllString(owner, "_")
	if owner == "" {
		owner = "anonymous"
	}
	key := path.Join("uploads", owner, uuid.NewString()+"."+ext)

	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		return Result{}, errors.Upstream("object storage", err)
	}
	s.log.WithContext(ctx).WithField("key", key).WithField("size", len(data)).Info("upload stored")
	return Result{Key: key, URL: url, ContentType: contentType, Size: len(data)}, nil
}
