package credguard

import (
	"github.com/hatchsec/credguard/storage"
	"github.com/hatchsec/credguard/storage/memory"
	"github.com/hatchsec/credguard/storage/redisrest"
	"github.com/hatchsec/credguard/storage/valkey"
)

// Backend identifies which counter store implementation was selected.
type Backend int

const (
	// BackendRemote is the HTTP pipeline key-value service
	BackendRemote Backend = iota

	// BackendValkey is a native Valkey/Redis connection
	BackendValkey

	// BackendLocal is the in-process map store
	BackendLocal
)

// String returns the backend name for logging.
func (b Backend) String() string {
	switch b {
	case BackendRemote:
		return "remote"
	case BackendValkey:
		return "valkey"
	case BackendLocal:
		return "local"
	default:
		return "unknown"
	}
}

// NewCounterStore selects and constructs the rate-limit counter backend
// from the configuration. Selection order: the HTTP pipeline store when
// the remote URL/token pair is configured, then the native Valkey store,
// then the in-process store. The in-process store is refused in
// production mode since it provides no cross-instance coordination.
func NewCounterStore(cfg Config) (storage.CounterStore, Backend, error) {
	logger := cfg.logger()

	if cfg.Storage.RemoteURL != "" && cfg.Storage.RemoteToken != "" {
		store, err := redisrest.New(redisrest.Config{
			URL:                  cfg.Storage.RemoteURL,
			Token:                cfg.Storage.RemoteToken,
			MaxRequestsPerSecond: cfg.Storage.RemoteMaxRequestsPerSecond,
			Logger:               logger,
		})
		if err != nil {
			return nil, BackendRemote, ErrConfiguration("failed to configure remote counter store: " + err.Error())
		}
		logger.Info("Rate-limit storage selected", "backend", BackendRemote.String())
		return store, BackendRemote, nil
	}

	if cfg.Storage.ValkeyAddress != "" {
		store, err := valkey.New(valkey.Config{
			Address:  cfg.Storage.ValkeyAddress,
			Password: cfg.Storage.ValkeyPassword,
			DB:       cfg.Storage.ValkeyDB,
			Logger:   logger,
		})
		if err != nil {
			return nil, BackendValkey, ErrConfiguration("failed to connect valkey counter store: " + err.Error())
		}
		logger.Info("Rate-limit storage selected", "backend", BackendValkey.String())
		return store, BackendValkey, nil
	}

	if cfg.mode() == ModeProduction {
		return nil, BackendLocal, ErrConfiguration("production mode requires a remote or valkey counter store")
	}

	logger.Warn("Using in-process rate-limit storage; counters are per-instance and reset on restart")
	return memory.NewWithLogger(logger), BackendLocal, nil
}
