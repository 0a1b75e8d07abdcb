package credguard

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/hatchsec/credguard/internal/util"
)

// Mode selects the deployment mode. It controls the rate limiter's
// failure policy and whether the in-process counter store is allowed.
type Mode string

const (
	// ModeProduction fails closed on storage errors and requires a
	// shared (remote or Valkey) counter store.
	ModeProduction Mode = "production"

	// ModeDevelopment fails open on storage errors and permits the
	// in-process counter store.
	ModeDevelopment Mode = "development"
)

// Default rate-limit parameters applied when the host does not override them.
const (
	DefaultRateLimit  = 60
	DefaultRateWindow = time.Minute
)

// Config holds the full configuration for the credential protection
// and rate-limiting layer.
type Config struct {
	// Mode is the deployment mode (default: development)
	Mode Mode

	// Encryption configures the token cipher
	Encryption EncryptionConfig

	// Storage configures the rate-limit counter backend
	Storage StorageConfig

	// RateLimit configures the default limiter parameters
	RateLimit RateLimitConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// EncryptionConfig holds the master key configuration.
type EncryptionConfig struct {
	// Key is the master key as a 64-character hex string (required
	// for any encrypt/decrypt use).
	Key string
}

// StorageConfig selects and configures the counter backend.
// When RemoteURL and RemoteToken are both set the HTTP pipeline backend
// is used; otherwise ValkeyAddress selects the native Valkey backend;
// otherwise the in-process backend is used (development mode only).
type StorageConfig struct {
	// RemoteURL is the base URL of the HTTP key-value service
	RemoteURL string

	// RemoteToken is the bearer token for the HTTP key-value service
	RemoteToken string

	// RemoteMaxRequestsPerSecond paces outbound calls to the HTTP
	// key-value service. Zero disables pacing.
	RemoteMaxRequestsPerSecond int

	// ValkeyAddress is a Valkey server address, e.g. "localhost:6379"
	ValkeyAddress string

	// ValkeyPassword is the optional Valkey password
	ValkeyPassword string

	// ValkeyDB is the optional Valkey database number
	ValkeyDB int
}

// RateLimitConfig holds the default limiter parameters used by the
// HTTP middleware.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per window (default 60)
	Limit int

	// Window is the fixed window duration (default 1 minute)
	Window time.Duration

	// TrustProxyHeaders enables client IP extraction from
	// X-Forwarded-For and X-Real-IP
	TrustProxyHeaders bool

	// TrustedProxyCount is the number of trusted proxies in front of
	// the service (used with TrustProxyHeaders)
	TrustedProxyCount int
}

// ConfigFromEnv builds a Config from the process environment:
// ENCRYPTION_KEY, KV_REST_API_URL, KV_REST_API_TOKEN,
// KV_REST_API_MAX_RPS, VALKEY_ADDRESS, VALKEY_PASSWORD, VALKEY_DB,
// and APP_ENV ("production" selects production mode).
//
// Malformed numeric variables fall back to zero rather than failing:
// startup validation is Validate's job, not the environment reader's.
func ConfigFromEnv() Config {
	mode := ModeDevelopment
	if os.Getenv("APP_ENV") == string(ModeProduction) {
		mode = ModeProduction
	}

	return Config{
		Mode: mode,
		Encryption: EncryptionConfig{
			Key: os.Getenv("ENCRYPTION_KEY"),
		},
		Storage: StorageConfig{
			RemoteURL:                  util.NormalizeURL(os.Getenv("KV_REST_API_URL")),
			RemoteToken:                os.Getenv("KV_REST_API_TOKEN"),
			RemoteMaxRequestsPerSecond: envInt("KV_REST_API_MAX_RPS"),
			ValkeyAddress:              os.Getenv("VALKEY_ADDRESS"),
			ValkeyPassword:             os.Getenv("VALKEY_PASSWORD"),
			ValkeyDB:                   envInt("VALKEY_DB"),
		},
	}
}

// envInt reads an integer environment variable, zero when unset or
// malformed.
func envInt(name string) int {
	value, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return value
}

// Validate checks the configuration for fatal problems. It is called
// by New but exposed so hosts can fail fast at startup.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeProduction, ModeDevelopment, "":
	default:
		return ErrConfiguration(fmt.Sprintf("unknown mode %q", c.Mode))
	}

	if c.Mode == ModeProduction && !c.Storage.hasShared() {
		return ErrConfiguration("production mode requires a remote or valkey counter store")
	}

	if (c.Storage.RemoteURL == "") != (c.Storage.RemoteToken == "") {
		return ErrConfiguration("remote store requires both URL and token")
	}

	if c.RateLimit.Limit < 0 {
		return ErrConfiguration("rate limit must not be negative")
	}

	return nil
}

// mode returns the effective mode, defaulting to development.
func (c *Config) mode() Mode {
	if c.Mode == ModeProduction {
		return ModeProduction
	}
	return ModeDevelopment
}

// logger returns the configured logger or the default.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// hasShared reports whether a cross-process counter store is configured.
func (s *StorageConfig) hasShared() bool {
	return (s.RemoteURL != "" && s.RemoteToken != "") || s.ValkeyAddress != ""
}
