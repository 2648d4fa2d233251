package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// GCSStorageConfig holds configuration specific to the GCS storage.
type GCSStorageConfig struct {
	BucketName   string `yaml:"bucket_name"`
	ObjectPrefix string `yaml:"object_prefix"`
}

// GCSStorage is a Storage keeping one JSON object per key under
// `<ObjectPrefix>/<namespace>/` in a bucket.
type GCSStorage[V any] struct {
	bucket GCSBucketHandle
	prefix string
	logger zerolog.Logger
}

// NewGCSStorage creates a GCSStorage.
func NewGCSStorage[V any](
	gcsClient GCSClient,
	config GCSStorageConfig,
	namespace string,
	logger zerolog.Logger,
) (*GCSStorage[V], error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	return &GCSStorage[V]{
		bucket: gcsClient.Bucket(config.BucketName),
		prefix: path.Join(config.ObjectPrefix, namespace) + "/",
		logger: logger.With().Str("component", "GCSStorage").Str("bucket", config.BucketName).Logger(),
	}, nil
}

func (s *GCSStorage[V]) object(key string) GCSObjectHandle {
	return s.bucket.Object(s.prefix + url.PathEscape(key) + ".json")
}

// Store uploads the JSON encoded value. The object is durable once the writer
// has been closed without error.
func (s *GCSStorage[V]) Store(ctx context.Context, key string, value V) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	w := s.object(key).NewWriter(ctx)
	if _, err := w.Write(jsonData); err != nil {
		_ = w.Close()
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write object.")
		return fmt.Errorf("failed to write gcs object for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to finalize object.")
		return fmt.Errorf("failed to close gcs writer for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully stored object.")
	return nil
}

// Contains reports whether the object for key exists.
func (s *GCSStorage[V]) Contains(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs for %s: %w", key, err)
	}
	return true, nil
}

// Get downloads and decodes the object for key.
func (s *GCSStorage[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return zero, fmt.Errorf("key '%s': %w", key, ErrNotStored)
		}
		return zero, fmt.Errorf("gcs reader for %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return zero, fmt.Errorf("gcs read for %s: %w", key, err)
	}
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return value, nil
}

// Remove deletes the object for key. A missing object is not an error.
func (s *GCSStorage[V]) Remove(ctx context.Context, key string) error {
	if err := s.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete for %s: %w", key, err)
	}
	return nil
}

// Clear deletes every object under the namespace prefix.
func (s *GCSStorage[V]) Clear(ctx context.Context) error {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("gcs list under %s: %w", s.prefix, err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gcs delete of %s: %w", attrs.Name, err)
		}
		deleted++
	}
	s.logger.Debug().Int("deleted", deleted).Msg("Cleared GCS storage.")
	return nil
}
