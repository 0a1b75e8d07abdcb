// Package redisrest implements the counter store over a Redis-compatible
// HTTP key-value service. Commands are batched into a single POST to the
// service's /pipeline endpoint, authorized with a bearer token.
//
// The store is shared across processes and instances, which makes it the
// production backend: counts survive restarts and apply fleet-wide.
package redisrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hatchsec/credguard/internal/util"
	"github.com/hatchsec/credguard/storage"
)

const (
	// DefaultTimeout bounds each pipeline round-trip. A hung call must
	// surface as a storage failure, not block the request path.
	DefaultTimeout = 5 * time.Second

	pipelinePath = "/pipeline"
)

// Config holds configuration for the HTTP pipeline backend.
type Config struct {
	// URL is the base URL of the key-value service (required).
	// Trailing slashes are normalized away.
	URL string

	// Token is the bearer token for the service (required).
	Token string

	// HTTPClient is an optional custom client. When nil, a client with
	// Timeout is used.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	// Default DefaultTimeout.
	Timeout time.Duration

	// MaxRequestsPerSecond paces outbound pipeline calls to protect the
	// shared service from stampedes. Zero disables pacing.
	MaxRequestsPerSecond int

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Store is the HTTP pipeline implementation of storage.CounterStore.
type Store struct {
	baseURL string
	token   string
	client  *http.Client
	pacer   *rate.Limiter
	logger  *slog.Logger
}

// Compile-time interface check
var _ storage.CounterStore = (*Store)(nil)

// New creates an HTTP pipeline counter store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redisrest: URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("redisrest: token is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var pacer *rate.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond)
	}

	return &Store{
		baseURL: util.NormalizeURL(cfg.URL),
		token:   cfg.Token,
		client:  client,
		pacer:   pacer,
		logger:  logger,
	}, nil
}

// commandResult is one element of the pipeline response, in command order.
type commandResult struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Get retrieves the entry for a key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*storage.Entry, error) {
	results, err := s.pipeline(ctx, [][]any{{"GET", key}})
	if err != nil {
		return nil, err
	}
	if results[0].Error != "" {
		return nil, fmt.Errorf("redisrest: GET failed: %s", results[0].Error)
	}

	var value *string
	if err := json.Unmarshal(results[0].Result, &value); err != nil {
		return nil, fmt.Errorf("redisrest: unexpected GET result: %w", err)
	}
	if value == nil {
		return nil, storage.ErrNotFound
	}
	return parseEntry(*value)
}

// Set stores an entry as JSON under a key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, entry *storage.Entry, ttl time.Duration) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redisrest: failed to marshal entry: %w", err)
	}

	results, err := s.pipeline(ctx, [][]any{{"SETEX", key, ttlSeconds(ttl), string(value)}})
	if err != nil {
		return err
	}
	if results[0].Error != "" {
		return fmt.Errorf("redisrest: SETEX failed: %s", results[0].Error)
	}
	return nil
}

// Increment atomically increments the counter for a key and refreshes its
// TTL. The two commands go out in one pipelined request: the INCR is atomic
// on the service side; the EXPIRE is best-effort, a missed refresh leaves
// a key lingering, never a wrong count.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	results, err := s.pipeline(ctx, [][]any{
		{"INCR", key},
		{"EXPIRE", key, ttlSeconds(ttl)},
	})
	if err != nil {
		return 0, err
	}
	if results[0].Error != "" {
		return 0, fmt.Errorf("redisrest: INCR failed: %s", results[0].Error)
	}

	var count int64
	if err := json.Unmarshal(results[0].Result, &count); err != nil {
		return 0, fmt.Errorf("redisrest: unexpected INCR result: %w", err)
	}

	if results[1].Error != "" {
		s.logger.Warn("TTL refresh failed; key will linger until overwritten",
			"error", results[1].Error)
	}

	return count, nil
}

// Clear is a no-op: the service expires keys by TTL and windowed keys are
// never reused, so explicit deletion is not required for correctness.
func (s *Store) Clear(_ context.Context, prefix string) error {
	s.logger.Debug("Clear relies on natural TTL expiry", "prefix", prefix)
	return nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// pipeline sends a batch of commands and returns per-command results in
// order. Any transport, status, or shape problem is a storage failure for
// the caller's fail-open/fail-closed policy to absorb.
func (s *Store) pipeline(ctx context.Context, commands [][]any) ([]commandResult, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("redisrest: pacing wait: %w", err)
		}
	}

	body, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("redisrest: failed to marshal pipeline: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+pipelinePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("redisrest: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redisrest: pipeline request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redisrest: pipeline returned status %d", resp.StatusCode)
	}

	var results []commandResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("redisrest: failed to decode pipeline response: %w", err)
	}
	if len(results) != len(commands) {
		return nil, fmt.Errorf("redisrest: pipeline returned %d results for %d commands", len(results), len(commands))
	}
	return results, nil
}

// parseEntry decodes a stored value. Keys created by INCR hold a bare
// integer count; keys written by Set hold the JSON entry.
func parseEntry(value string) (*storage.Entry, error) {
	if count, err := strconv.ParseInt(value, 10, 64); err == nil {
		return &storage.Entry{Count: count}, nil
	}

	var entry storage.Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, fmt.Errorf("redisrest: unexpected entry value: %w", err)
	}
	return &entry, nil
}

// ttlSeconds converts a TTL to whole seconds, minimum one: the service has
// second granularity and zero would mean "no expiry".
func ttlSeconds(ttl time.Duration) int64 {
	s := int64(ttl / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
