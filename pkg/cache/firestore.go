package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection_name"`
}

// docID maps a cache key to a valid Firestore document ID.
func docID(key string) string {
	return url.PathEscape(key)
}

// FirestoreSource is a generic Fetcher for a specific Firestore collection.
// It acts as a "source of truth" that a Cache can pull from.
type FirestoreSource[V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreSource creates a new generic FirestoreSource.
func NewFirestoreSource[V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreSource[V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreSource initialized.")

	return &FirestoreSource[V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreSource").Logger(),
	}, nil
}

// Fetch retrieves a single document from Firestore by its key.
func (s *FirestoreSource[V]) Fetch(ctx context.Context, key string) (V, error) {
	var zero V
	docSnap, err := s.client.Collection(s.collectionName).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Warn().Str("key", key).Msg("Document not found in Firestore.")
			return zero, fmt.Errorf("document not found: %w", err)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return zero, fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var value V
	if err := docSnap.DataTo(&value); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to map Firestore document data.")
		return zero, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully fetched data from Firestore.")
	return value, nil
}

// FirestoreStorage is a Storage keeping one document per key in a collection
// named after the cache namespace. It is meant for low volume deployments;
// use RedisStorage for high volume.
type FirestoreStorage[V any] struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStorage creates a FirestoreStorage. The client's lifecycle is
// managed externally.
func NewFirestoreStorage[V any](client *firestore.Client, namespace string, logger zerolog.Logger) (*FirestoreStorage[V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	collection := namespace + "_values"
	return &FirestoreStorage[V]{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreStorage").Str("collection", collection).Logger(),
	}, nil
}

// Store creates or overwrites the document for key.
func (s *FirestoreStorage[V]) Store(ctx context.Context, key string, value V) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Set(ctx, value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Contains reports whether the document for key exists.
func (s *FirestoreStorage[V]) Contains(ctx context.Context, key string) (bool, error) {
	docSnap, err := s.client.Collection(s.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("firestore get for %s: %w", key, err)
	}
	return docSnap.Exists(), nil
}

// Get retrieves the document for key and maps it to the value type.
func (s *FirestoreStorage[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	docSnap, err := s.client.Collection(s.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("key '%s': %w", key, ErrNotStored)
		}
		return zero, fmt.Errorf("firestore get for %s: %w", key, err)
	}
	var value V
	if err := docSnap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}
	return value, nil
}

// Remove deletes the document for key. A missing document is not an error.
func (s *FirestoreStorage[V]) Remove(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore delete for %s: %w", key, err)
	}
	return nil
}

// Clear deletes every document in the collection.
func (s *FirestoreStorage[V]) Clear(ctx context.Context) error {
	iter := s.client.Collection(s.collection).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore list of %s: %w", s.collection, err)
		}
		if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("firestore delete of %s: %w", ref.ID, err)
		}
	}
	s.logger.Debug().Msg("Cleared Firestore storage.")
	return nil
}
