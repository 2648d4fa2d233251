// Package invalidation broadcasts cache invalidations between processes over
// Google Cloud Pub/Sub, so that every instance sharing a cache namespace drops
// a key when one of them learns it has changed.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-accesscache/pkg/cache"
	"github.com/rs/zerolog"
)

// Message is the JSON payload published for an invalidated key.
type Message struct {
	Cache string `json:"cache"`
	Key   string `json:"key"`
}

// Invalidator is a cache that can drop a key. *cache.Cache satisfies it.
type Invalidator interface {
	Name() string
	Invalidate(ctx context.Context, key string) error
}

// PublisherConfig holds configuration for the Publisher.
type PublisherConfig struct {
	TopicID                    string        `yaml:"topic_id"`
	TopicExistsTimeout         time.Duration `yaml:"topic_exists_timeout"`
	PublishConfirmationTimeout time.Duration `yaml:"publish_confirmation_timeout"`
}

// Publisher announces invalidated keys on a topic.
type Publisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPublisher creates a Publisher, checking that the topic exists.
func NewPublisher(ctx context.Context, cfg *PublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for publisher")
	}
	existsTimeout := cfg.TopicExistsTimeout
	if existsTimeout <= 0 {
		existsTimeout = 15 * time.Second
	}
	confirmTimeout := cfg.PublishConfirmationTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	existsCtx, cancel := context.WithTimeout(ctx, existsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("Invalidation publisher initialized.")
	return &Publisher{
		topic:   topic,
		timeout: confirmTimeout,
		logger:  logger.With().Str("component", "InvalidationPublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish announces that key of the named cache is stale and waits for the
// server to confirm the message.
func (p *Publisher) Publish(ctx context.Context, cacheName, key string) error {
	payload, err := json.Marshal(Message{Cache: cacheName, Key: key})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"cache": cacheName},
	})

	confirmCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	id, err := result.Get(confirmCtx)
	if err != nil {
		p.logger.Error().Err(err).Str("cache", cacheName).Str("key", key).Msg("Failed to publish invalidation.")
		return fmt.Errorf("failed to publish invalidation of %s: %w", key, err)
	}
	p.logger.Debug().Str("msg_id", id).Str("cache", cacheName).Str("key", key).Msg("Published invalidation.")
	return nil
}

// Stop flushes pending messages and stops the topic's publishing goroutines.
func (p *Publisher) Stop() {
	p.topic.Stop()
}

// SubscriberConfig holds configuration for the Subscriber.
type SubscriberConfig struct {
	SubscriptionID         string `yaml:"subscription_id"`
	MaxOutstandingMessages int    `yaml:"max_outstanding_messages"`
	NumGoroutines          int    `yaml:"num_goroutines"`
}

// Subscriber receives invalidations and applies them to registered caches.
type Subscriber struct {
	subscription *pubsub.Subscription
	logger       zerolog.Logger

	mu     sync.RWMutex
	caches map[string]Invalidator

	lifecycleMu        sync.Mutex
	started            bool
	stopped            bool
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// ErrAlreadyStarted is returned by Start when the subscriber was started or
// stopped before.
var ErrAlreadyStarted = errors.New("subscriber already started or stopped")

// NewSubscriber creates a Subscriber, checking that the subscription exists.
func NewSubscriber(ctx context.Context, cfg *SubscriberConfig, client *pubsub.Client, logger zerolog.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for subscriber")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	return &Subscriber{
		subscription: sub,
		logger:       logger.With().Str("component", "InvalidationSubscriber").Str("subscription_id", cfg.SubscriptionID).Logger(),
		caches:       make(map[string]Invalidator),
		doneChan:     make(chan struct{}),
	}, nil
}

// Register routes invalidations for c.Name() to c.
func (s *Subscriber) Register(c Invalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[c.Name()] = c
}

// Start begins receiving in a background goroutine until ctx is done or Stop
// is called. A Subscriber can be started once.
func (s *Subscriber) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.started || s.stopped {
		return ErrAlreadyStarted
	}
	s.started = true

	receiveCtx, cancel := context.WithCancel(ctx)
	s.cancelSubscription = cancel

	go func() {
		defer close(s.doneChan)
		defer s.logger.Info().Msg("Invalidation receive goroutine stopped.")

		s.logger.Info().Msg("Invalidation receive goroutine started.")
		err := s.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			if err := s.handle(ctx, msg.Data); err != nil {
				s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to apply invalidation.")
				msg.Nack()
				return
			}
			msg.Ack()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

// handle applies one invalidation. Malformed messages, unknown caches and
// terminated caches are acked and dropped.
func (s *Subscriber) handle(ctx context.Context, data []byte) error {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed invalidation.")
		return nil
	}

	s.mu.RLock()
	c, ok := s.caches[m.Cache]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug().Str("cache", m.Cache).Msg("No cache registered for invalidation.")
		return nil
	}
	if err := c.Invalidate(ctx, m.Key); err != nil {
		if errors.Is(err, cache.ErrTerminated) {
			return nil
		}
		return err
	}
	s.logger.Debug().Str("cache", m.Cache).Str("key", m.Key).Msg("Applied invalidation.")
	return nil
}

// Stop cancels receiving and waits for the receive goroutine to exit. Done is
// closed once Stop returns, even if Start was never called.
func (s *Subscriber) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	if !s.started {
		close(s.doneChan)
		return nil
	}
	s.logger.Info().Msg("Stopping invalidation subscriber...")
	s.cancelSubscription()
	select {
	case <-s.doneChan:
	case <-time.After(30 * time.Second):
		s.logger.Error().Msg("Timeout waiting for invalidation receive goroutine to stop.")
	}
	return nil
}

// Done is closed once the receive goroutine has exited.
func (s *Subscriber) Done() <-chan struct{} { return s.doneChan }
