// Package credguard protects stored OAuth credentials with encryption
// at rest and shields endpoints with fixed-window rate limiting.
//
// A Guard is the entry point: it owns the token cipher, selects the
// rate-limit counter backend (HTTP pipeline service, native Valkey, or
// in-process), and hands out the limiter, the HTTP middleware, and the
// credential-store interceptor.
package credguard

import (
	"context"
	"log/slog"

	"github.com/hatchsec/credguard/credentials"
	"github.com/hatchsec/credguard/instrumentation"
	"github.com/hatchsec/credguard/security"
	"github.com/hatchsec/credguard/storage"
)

// Guard bundles the token cipher, the rate limiter, and their backing
// storage into one configured unit. Construct it once at startup and
// share it across the host application.
type Guard struct {
	cfg     Config
	cipher  *security.Cipher
	store   storage.CounterStore
	backend Backend
	limiter *security.Limiter
	auditor *security.Auditor
	instr   *instrumentation.Instrumentation
	logger  *slog.Logger
}

// New validates the configuration and assembles a Guard. The counter
// backend is selected here, once; in production a remote or Valkey
// store is required and its absence is a fatal configuration error.
//
// The encryption key is optional at this point so that hosts using only
// rate limiting can omit it; ProtectStore and Cipher use fail without it.
func New(cfg Config) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger()

	var cipher *security.Cipher
	if cfg.Encryption.Key != "" {
		var err error
		cipher, err = security.NewCipherFromHex(cfg.Encryption.Key)
		if err != nil {
			return nil, ErrConfiguration("invalid encryption key: " + err.Error())
		}
	}

	backendStore, backend, err := NewCounterStore(cfg)
	if err != nil {
		return nil, err
	}

	instr, err := instrumentation.New(instrumentation.Config{
		ServiceName: "credguard",
	})
	if err != nil {
		backendStore.Close()
		return nil, ErrServerError("failed to initialize instrumentation: " + err.Error())
	}

	store := newInstrumentedStore(backendStore, instr.Metrics())

	policy := security.FailOpen
	if cfg.mode() == ModeProduction {
		policy = security.FailClosed
	}

	auditor := security.NewAuditor(logger, true)

	limiter, err := security.NewLimiter(security.LimiterConfig{
		Store:   store,
		Policy:  policy,
		Logger:  logger,
		Auditor: auditor,
	})
	if err != nil {
		store.Close()
		return nil, ErrConfiguration("failed to build rate limiter: " + err.Error())
	}

	return &Guard{
		cfg:     cfg,
		cipher:  cipher,
		store:   store,
		backend: backend,
		limiter: limiter,
		auditor: auditor,
		instr:   instr,
		logger:  logger,
	}, nil
}

// Cipher returns the token cipher. Returns a configuration error if no
// encryption key was configured.
func (g *Guard) Cipher() (*security.Cipher, error) {
	if g.cipher == nil {
		return nil, ErrConfiguration("encryption key is not configured")
	}
	return g.cipher, nil
}

// Limiter returns the rate limiter.
func (g *Guard) Limiter() *security.Limiter {
	return g.limiter
}

// Backend reports which counter store backend was selected.
func (g *Guard) Backend() Backend {
	return g.backend
}

// Auditor returns the security event auditor.
func (g *Guard) Auditor() *security.Auditor {
	return g.auditor
}

// Instrumentation returns the OpenTelemetry instrumentation handle.
func (g *Guard) Instrumentation() *instrumentation.Instrumentation {
	return g.instr
}

// ProtectStore wraps a credential store so that token fields are
// encrypted at rest, using the Guard's cipher, logger, auditor, and
// metrics.
func (g *Guard) ProtectStore(store credentials.Store) (*credentials.Interceptor, error) {
	cipher, err := g.Cipher()
	if err != nil {
		return nil, err
	}

	return credentials.NewInterceptor(credentials.InterceptorConfig{
		Store:   store,
		Cipher:  cipher,
		Logger:  g.logger,
		Auditor: g.auditor,
		Metrics: g.instr.Metrics(),
	})
}

// RotateCredentials re-encrypts a user's stored credentials under a new
// master key and then swaps the Guard's active cipher to it. The store
// must be the raw (unwrapped) credential store. Returns the rotated and
// failed field counts.
//
// The active key is swapped only when every field rotated cleanly, so a
// partial failure leaves both the store and the cipher readable under
// the old key.
func (g *Guard) RotateCredentials(ctx context.Context, store credentials.Store, userID, newKeyHex string) (rotated, failed int, err error) {
	cipher, err := g.Cipher()
	if err != nil {
		return 0, 0, err
	}

	oldKey, err := security.ParseKey(g.cfg.Encryption.Key)
	if err != nil {
		return 0, 0, ErrConfiguration("invalid active encryption key: " + err.Error())
	}
	newKey, err := security.ParseKey(newKeyHex)
	if err != nil {
		return 0, 0, ErrConfiguration("invalid new encryption key: " + err.Error())
	}

	rotated, failed, err = credentials.RotateUserKeys(ctx, store, userID, oldKey, newKey, g.logger, g.auditor)
	if err != nil {
		return rotated, failed, err
	}
	if failed > 0 {
		return rotated, failed, ErrCrypto("key rotation left fields under the old key")
	}

	if err := cipher.Rekey(newKey); err != nil {
		return rotated, failed, ErrCrypto("failed to swap active key: " + err.Error())
	}
	g.cfg.Encryption.Key = newKeyHex

	return rotated, failed, nil
}

// Close releases the counter store connection and shuts down
// instrumentation.
func (g *Guard) Close(ctx context.Context) error {
	err := g.store.Close()
	if shutdownErr := g.instr.Shutdown(ctx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
