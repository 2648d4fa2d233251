package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	// BaseURL is joined with the path-escaped key, e.g.
	// https://mastodon.social/api/v1/accounts + "/" + key.
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// HTTPStatusError is returned by HTTPSource for non-2xx responses.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPSource is a Fetcher reading JSON documents from an HTTP API.
type HTTPSource[V any] struct {
	client  *http.Client
	baseURL string
	headers map[string]string
	logger  zerolog.Logger
}

// NewHTTPSource creates an HTTPSource. A nil client means a new client with
// the configured timeout.
func NewHTTPSource[V any](cfg *HTTPSourceConfig, client *http.Client, logger zerolog.Logger) (*HTTPSource[V], error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPSource[V]{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		logger:  logger.With().Str("component", "HTTPSource").Logger(),
	}, nil
}

// Fetch GETs the document for key and decodes it.
func (s *HTTPSource[V]) Fetch(ctx context.Context, key string) (V, error) {
	var zero V
	target := s.baseURL + "/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to build request for %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("url", target).Msg("HTTP request failed.")
		return zero, fmt.Errorf("http get for %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, &HTTPStatusError{URL: target, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var value V
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return zero, fmt.Errorf("failed to decode response for %s: %w", key, err)
	}
	s.logger.Debug().Str("url", target).Msg("Fetched from HTTP source.")
	return value, nil
}
