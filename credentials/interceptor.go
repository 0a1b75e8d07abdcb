package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hatchsec/credguard/instrumentation"
	"github.com/hatchsec/credguard/security"
)

// encryptedField names a sensitive credential field and how to reach it.
type encryptedField struct {
	name string
	get  func(*Credential) string
	set  func(*Credential, string)
}

// encryptedFields is the fixed set of fields the interceptor protects.
var encryptedFields = []encryptedField{
	{
		name: "access_token",
		get:  func(c *Credential) string { return c.AccessToken },
		set:  func(c *Credential, v string) { c.AccessToken = v },
	},
	{
		name: "refresh_token",
		get:  func(c *Credential) string { return c.RefreshToken },
		set:  func(c *Credential, v string) { c.RefreshToken = v },
	},
	{
		name: "id_token",
		get:  func(c *Credential) string { return c.IDToken },
		set:  func(c *Credential, v string) { c.IDToken = v },
	},
}

// InterceptorConfig holds configuration for an Interceptor.
type InterceptorConfig struct {
	// Store is the wrapped persistence layer (required)
	Store Store

	// Cipher encrypts and decrypts the protected fields (required)
	Cipher *security.Cipher

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Auditor optionally records decrypt failures as security events
	Auditor *security.Auditor

	// Metrics optionally records cipher operation counts, durations,
	// and field-level decrypt failures
	Metrics *instrumentation.Metrics
}

// Interceptor wraps a Store so that the protected token fields are
// encrypted before they reach the underlying store and decrypted on
// the way out. Call sites use it as a plain Store.
//
// Writes are idempotent: a field that already holds an encrypted blob
// is passed through untouched, so wrapping an already-wrapped store
// does not double-encrypt. Encryption failures on a write are always
// returned; a credential is never silently stored in plaintext.
// Decryption failures on a read clear the affected field and log,
// so one corrupted record cannot fail a whole listing.
type Interceptor struct {
	store   Store
	cipher  *security.Cipher
	logger  *slog.Logger
	auditor *security.Auditor
	metrics *instrumentation.Metrics
}

// Compile-time interface check
var _ Store = (*Interceptor)(nil)

// NewInterceptor creates an Interceptor over the given store and cipher.
func NewInterceptor(cfg InterceptorConfig) (*Interceptor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Interceptor{
		store:   cfg.Store,
		cipher:  cfg.Cipher,
		logger:  logger,
		auditor: cfg.Auditor,
		metrics: cfg.Metrics,
	}, nil
}

// Create encrypts the protected fields and stores the credential.
func (i *Interceptor) Create(ctx context.Context, cred *Credential) (*Credential, error) {
	enc, err := i.encryptCredential(ctx, cred)
	if err != nil {
		return nil, err
	}

	stored, err := i.store.Create(ctx, enc)
	if err != nil {
		return nil, err
	}

	return i.decryptCredential(ctx, stored), nil
}

// CreateBatch encrypts and stores multiple credentials. Any encryption
// failure aborts the whole batch before anything is written.
func (i *Interceptor) CreateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error) {
	encrypted := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		enc, err := i.encryptCredential(ctx, cred)
		if err != nil {
			return nil, err
		}
		encrypted = append(encrypted, enc)
	}

	stored, err := i.store.CreateBatch(ctx, encrypted)
	if err != nil {
		return nil, err
	}

	return i.decryptCredentials(ctx, stored), nil
}

// Get retrieves a credential and decrypts its protected fields.
func (i *Interceptor) Get(ctx context.Context, id string) (*Credential, error) {
	cred, err := i.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return i.decryptCredential(ctx, cred), nil
}

// ListByUser retrieves all of a user's credentials and decrypts them.
// A record whose fields fail to decrypt is still returned, with the
// failed fields cleared.
func (i *Interceptor) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	creds, err := i.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return i.decryptCredentials(ctx, creds), nil
}

// Update encrypts the protected fields and replaces the stored credential.
func (i *Interceptor) Update(ctx context.Context, cred *Credential) (*Credential, error) {
	enc, err := i.encryptCredential(ctx, cred)
	if err != nil {
		return nil, err
	}

	stored, err := i.store.Update(ctx, enc)
	if err != nil {
		return nil, err
	}

	return i.decryptCredential(ctx, stored), nil
}

// UpdateBatch encrypts and replaces multiple stored credentials.
func (i *Interceptor) UpdateBatch(ctx context.Context, creds []*Credential) ([]*Credential, error) {
	encrypted := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		enc, err := i.encryptCredential(ctx, cred)
		if err != nil {
			return nil, err
		}
		encrypted = append(encrypted, enc)
	}

	stored, err := i.store.UpdateBatch(ctx, encrypted)
	if err != nil {
		return nil, err
	}

	return i.decryptCredentials(ctx, stored), nil
}

// Delete removes a credential from the underlying store.
func (i *Interceptor) Delete(ctx context.Context, id string) error {
	return i.store.Delete(ctx, id)
}

// Close closes the underlying store.
func (i *Interceptor) Close() error {
	return i.store.Close()
}

// encryptCredential returns a copy of cred with every protected field
// that holds a plaintext value replaced by its encrypted blob. Fields
// that are empty or already encrypted pass through unchanged.
func (i *Interceptor) encryptCredential(ctx context.Context, cred *Credential) (*Credential, error) {
	result := cred.Clone()

	for _, field := range encryptedFields {
		value := field.get(result)
		if value == "" || security.IsLikelyEncrypted(value) {
			continue
		}

		start := time.Now()
		blob, err := i.cipher.Encrypt(value)
		i.metrics.RecordEncryptionOperation(ctx, "encrypt", float64(time.Since(start).Milliseconds()))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s: %w", field.name, err)
		}
		field.set(result, blob)
	}

	return result, nil
}

// decryptCredential returns a copy of cred with every protected field
// that holds an encrypted blob replaced by its plaintext. A field that
// fails to decrypt is cleared and the failure logged; the record is
// still returned.
func (i *Interceptor) decryptCredential(ctx context.Context, cred *Credential) *Credential {
	if cred == nil {
		return nil
	}

	result := cred.Clone()

	for _, field := range encryptedFields {
		value := field.get(result)
		if value == "" || !security.IsLikelyEncrypted(value) {
			continue
		}

		start := time.Now()
		plaintext, err := i.cipher.Decrypt(value)
		i.metrics.RecordEncryptionOperation(ctx, "decrypt", float64(time.Since(start).Milliseconds()))
		if err != nil {
			i.logger.Error("Failed to decrypt credential field",
				"credential_id", result.ID,
				"field", field.name,
				"error", err)
			i.auditor.LogDecryptFailure(result.UserID, field.name)
			i.metrics.RecordDecryptFailure(ctx, field.name)
			field.set(result, "")
			continue
		}
		field.set(result, plaintext)
	}

	return result
}

func (i *Interceptor) decryptCredentials(ctx context.Context, creds []*Credential) []*Credential {
	result := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		result = append(result, i.decryptCredential(ctx, cred))
	}
	return result
}
