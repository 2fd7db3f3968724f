// Package storage resolves a media asset's file reference to its bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ifuryst/kiosksync/internal/config"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is the content behind a file reference.
type Object struct {
	Data        []byte
	ContentType string
}

// AssetSource pulls asset bytes by reference.
type AssetSource interface {
	Fetch(ctx context.Context, reference string) (*Object, error)
}

// ParseReference splits a reference into bucket and object key. Accepted
// forms are gs://bucket/key, https://storage.googleapis.com/bucket/key and a
// bare key resolved against defaultBucket.
func ParseReference(reference, defaultBucket string) (bucket, key string, err error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", "", fmt.Errorf("empty file reference")
	}

	switch {
	case strings.HasPrefix(ref, "gs://"):
		rest := strings.TrimPrefix(ref, "gs://")
		bucket, key, _ = strings.Cut(rest, "/")
	case strings.HasPrefix(ref, "https://storage.googleapis.com/"):
		u, parseErr := url.Parse(ref)
		if parseErr != nil {
			return "", "", fmt.Errorf("invalid file reference %q: %w", ref, parseErr)
		}
		bucket, key, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		bucket, key = defaultBucket, strings.TrimPrefix(ref, "/")
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("file reference %q does not name a bucket and object", ref)
	}
	return bucket, key, nil
}

type GCSSource struct {
	client *storage.Client
	config *config.StorageConfig
	logger *zap.Logger
}

func NewGCSSource(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (*GCSSource, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	logger.Info("Asset storage initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", cfg.Endpoint))

	return &GCSSource{client: client, config: cfg, logger: logger}, nil
}

func (s *GCSSource) Fetch(ctx context.Context, reference string) (*Object, error) {
	bucket, key, err := ParseReference(reference, s.config.Bucket)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout())
	defer cancel()

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", reference, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", reference, err)
	}

	return &Object{Data: data, ContentType: r.Attrs.ContentType}, nil
}

func (s *GCSSource) Close() error {
	return s.client.Close()
}

// MemorySource serves objects from a map keyed by reference.
type MemorySource struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemorySource() *MemorySource {
	return &MemorySource{objects: make(map[string]Object)}
}

func (m *MemorySource) Put(reference string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[reference] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
}

func (m *MemorySource) Fetch(_ context.Context, reference string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[reference]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, reference)
	}
	return &Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}, nil
}
