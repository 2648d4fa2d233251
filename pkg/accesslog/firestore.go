package accesslog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreAccess is the document layout of a recorded access.
type firestoreAccess struct {
	Key         string `firestore:"key"`
	Type        string `firestore:"type"`
	TimestampMs int64  `firestore:"timestamp_ms"`
}

// FirestoreLog is a Log backed by a Firestore collection named
// `<namespace>_access`, holding one document per (key, type).
type FirestoreLog struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreLog creates a FirestoreLog. The client's lifecycle is managed by the caller.
func NewFirestoreLog(client *firestore.Client, namespace string, logger zerolog.Logger) (*FirestoreLog, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	collection := namespace + "_access"
	logger.Info().Str("collection", collection).Msg("FirestoreLog initialized.")
	return &FirestoreLog{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreLog").Logger(),
	}, nil
}

func (l *FirestoreLog) doc(key string, accessType AccessType) *firestore.DocumentRef {
	return l.client.Collection(l.collection).Doc(accessType.String() + ":" + url.PathEscape(key))
}

// Record overwrites the document for the access's key and type.
func (l *FirestoreLog) Record(ctx context.Context, access Access) error {
	_, err := l.doc(access.Key, access.Type).Set(ctx, firestoreAccess{
		Key:         access.Key,
		Type:        access.Type.String(),
		TimestampMs: ToMillis(access.Timestamp),
	})
	if err != nil {
		l.logger.Error().Err(err).Str("key", access.Key).Stringer("type", access.Type).Msg("Failed to record access in Firestore.")
		return fmt.Errorf("firestore set for %s access of %s: %w", access.Type, access.Key, err)
	}
	return nil
}

// Last reads the latest timestamp for key and type.
func (l *FirestoreLog) Last(ctx context.Context, key string, accessType AccessType) (time.Duration, bool, error) {
	snap, err := l.doc(key, accessType).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("firestore get for %s access of %s: %w", accessType, key, err)
	}
	var rec firestoreAccess
	if err := snap.DataTo(&rec); err != nil {
		return 0, false, fmt.Errorf("firestore DataTo for %s access of %s: %w", accessType, key, err)
	}
	return FromMillis(rec.TimestampMs), true, nil
}

// Clear deletes every document in the access collection.
func (l *FirestoreLog) Clear(ctx context.Context) error {
	iter := l.client.Collection(l.collection).DocumentRefs(ctx)
	deleted := 0
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore list of %s: %w", l.collection, err)
		}
		if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("firestore delete of %s: %w", ref.ID, err)
		}
		deleted++
	}
	l.logger.Debug().Int("deleted", deleted).Msg("Cleared access log.")
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (l *FirestoreLog) Close() error {
	return nil
}
