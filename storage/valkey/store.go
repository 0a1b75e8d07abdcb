// Package valkey provides a Valkey-backed counter store for
// rate-limit state shared across processes.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/hatchsec/credguard/storage"
)

const (
	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.CounterStore.
type Store struct {
	client valkeygo.Client
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.CounterStore = (*Store)(nil)

// New creates a new Valkey-backed counter store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey rate-limit storage",
		"address", cfg.Address,
		"db", cfg.DB)

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a counter entry by key.
// Returns storage.ErrNotFound if the key does not exist or has expired.
func (s *Store) Get(ctx context.Context, key string) (*storage.Entry, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get counter: %w", err)
	}

	return parseEntry(data)
}

// Set stores a full counter entry with the given TTL.
func (s *Store) Set(ctx context.Context, key string, entry *storage.Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal counter entry: %w", err)
	}

	err = s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}

	return nil
}

// Increment atomically increments the counter at key, applying the TTL
// alongside. The INCR and EXPIRE are pipelined; a failed EXPIRE after a
// successful INCR is logged but not returned, since the count itself is
// correct and the key will be recreated next window.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	results := s.client.DoMulti(ctx,
		s.client.B().Incr().Key(key).Build(),
		s.client.B().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build(),
	)

	count, err := results[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	if err := results[1].Error(); err != nil {
		s.logger.Warn("Failed to set TTL on rate-limit counter",
			"error", err)
	}

	return count, nil
}

// Clear removes all keys matching the given prefix using SCAN and DEL.
func (s *Store) Clear(ctx context.Context, prefix string) error {
	pattern := prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan counters: %w", err)
		}

		if len(result.Elements) > 0 {
			err := s.client.Do(ctx,
				s.client.B().Del().Key(result.Elements...).Build(),
			).Error()
			if err != nil {
				return fmt.Errorf("failed to delete counters: %w", err)
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey rate-limit storage connection closed")
	return nil
}

// parseEntry decodes a stored counter value. Keys created by Increment
// hold a bare integer; keys created by Set hold a JSON entry.
func parseEntry(data string) (*storage.Entry, error) {
	if count, err := strconv.ParseInt(data, 10, 64); err == nil {
		return &storage.Entry{Count: count}, nil
	}

	var entry storage.Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to parse counter entry: %w", err)
	}

	return &entry, nil
}

// ttlSeconds converts a duration to whole seconds with a minimum of 1,
// so sub-second TTLs never expire immediately.
func ttlSeconds(ttl time.Duration) int64 {
	s := int64(ttl / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// isNilError checks if an error is a Valkey nil response (key not found)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
