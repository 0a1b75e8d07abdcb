// Package security provides the credential protection core: authenticated
// token encryption at rest, fixed-window rate limiting, audit logging, and
// the HTTP-facing helpers (client IP extraction, request IDs, security
// headers) the middleware layer builds on.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the master key length in bytes (AES-256).
	KeySize = 32

	// KeyHexLength is the length of a hex-encoded master key.
	KeyHexLength = 64

	saltSize = 32
	ivSize   = 16
	tagSize  = 16

	// blockSize is the AES block size; plaintext is padded to a multiple
	// of it so ciphertext is never shorter than one block.
	blockSize = 16

	// minBlobSize is the smallest plausible encrypted blob:
	// salt(32) + iv(16) + tag(16) + one block of ciphertext(16).
	// Values shorter than this are classified as plaintext.
	minBlobSize = saltSize + ivSize + tagSize + blockSize

	// scrypt cost parameters. Deliberately slow: the per-call derivation is
	// the brute-force defense for the stored blobs.
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

var (
	// ErrInvalidKey indicates a missing or malformed master key.
	// This is a configuration error and is never recovered locally.
	ErrInvalidKey = errors.New("invalid encryption key")

	// ErrDecryptFailed indicates a blob that could not be decrypted:
	// malformed base64, truncated buffer, or authentication-tag mismatch.
	// The message deliberately carries no detail about which.
	ErrDecryptFailed = errors.New("failed to decrypt token")
)

// Cipher encrypts and decrypts tokens with AES-256-GCM under keys derived
// per call from the master key via scrypt.
//
// Blob layout (base64-encoded at rest):
//
//	salt(32) || iv(16) || tag(16) || ciphertext
//
// The fresh salt and IV per call make encryption non-deterministic: two
// encryptions of the same plaintext never produce the same blob.
//
// The master key is read-only shared state; Rekey is the only mutation and
// is guarded so no concurrent Encrypt/Decrypt observes a partial swap.
type Cipher struct {
	mu  sync.RWMutex
	key []byte
}

// NewCipher creates a cipher from a raw 32-byte master key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be exactly %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// NewCipherFromHex creates a cipher from a 64-character hex master key,
// the format configuration supplies via ENCRYPTION_KEY.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// ParseKey decodes a 64-character hex master key. The error never echoes
// the supplied value.
func ParseKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key is not set", ErrInvalidKey)
	}
	if len(hexKey) != KeyHexLength {
		return nil, fmt.Errorf("%w: key must be %d hex characters, got %d", ErrInvalidKey, KeyHexLength, len(hexKey))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex", ErrInvalidKey)
	}
	return key, nil
}

// GenerateKey returns a new cryptographically random master key as a
// 64-character hex string.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt encrypts a plaintext token and returns the base64-encoded blob.
// Empty input is returned unchanged so absent values are never encrypted.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if len(key) != KeySize {
		return "", fmt.Errorf("%w: cipher has no key configured", ErrInvalidKey)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := c.aead(key, salt)
	if err != nil {
		return "", err
	}

	// Seal appends the auth tag after the ciphertext; the blob layout puts
	// the tag first, so split and reorder. Padding keeps the ciphertext at
	// one block minimum, which the length classifier relies on.
	sealed := gcm.Seal(nil, iv, pad([]byte(plaintext)), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, saltSize+ivSize+tagSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt decrypts a base64-encoded blob produced by Encrypt.
// Empty input returns empty output. Any malformed or tampered blob fails
// with ErrDecryptFailed; the error never includes plaintext or key material.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if len(key) != KeySize {
		return "", fmt.Errorf("%w: cipher has no key configured", ErrInvalidKey)
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", ErrDecryptFailed)
	}
	if len(blob) < saltSize+ivSize+tagSize {
		return "", fmt.Errorf("%w: truncated blob", ErrDecryptFailed)
	}

	salt := blob[:saltSize]
	iv := blob[saltSize : saltSize+ivSize]
	tag := blob[saltSize+ivSize : saltSize+ivSize+tagSize]
	ciphertext := blob[saltSize+ivSize+tagSize:]

	gcm, err := c.aead(key, salt)
	if err != nil {
		return "", err
	}

	// Reassemble ciphertext||tag, the order Open expects.
	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	padded, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := unpad(padded)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b), len(b)+n)
	copy(padded, b)
	for i := 0; i < n; i++ {
		padded = append(padded, byte(n))
	}
	return padded
}

// unpad strips PKCS#7 padding. The ciphertext is already authenticated, so
// invalid padding here means a corrupted blob rather than an oracle risk.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

// Rekey replaces the active master key. Callers use this after an offline
// Rotate pass over stored blobs; in-flight Encrypt/Decrypt calls see either
// the old key or the new one, never a partial swap.
func (c *Cipher) Rekey(newKey []byte) error {
	if len(newKey) != KeySize {
		return fmt.Errorf("%w: key must be exactly %d bytes, got %d", ErrInvalidKey, KeySize, len(newKey))
	}
	k := make([]byte, KeySize)
	copy(k, newKey)

	c.mu.Lock()
	c.key = k
	c.mu.Unlock()
	return nil
}

// aead derives the per-call key from the master key and salt, and builds
// the GCM instance over it.
func (c *Cipher) aead(key, salt []byte) (cipher.AEAD, error) {
	derived, err := scrypt.Key(key, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// IsLikelyEncrypted reports whether a value looks like a blob produced by
// Encrypt: valid base64 decoding to at least the minimum blob size. This is
// a heuristic classifier used to avoid double-encrypting on write and
// decrypt attempts on plaintext; it is not a cryptographic guarantee.
func IsLikelyEncrypted(value string) bool {
	if value == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(decoded) >= minBlobSize
}

// Rotate decrypts a blob under oldKey and re-encrypts the recovered
// plaintext under newKey. It is a pure transformation: no cipher's active
// key is touched, so the configured key is unchanged whether rotation
// succeeds or fails. Empty input is a no-op.
func Rotate(blob string, oldKey, newKey []byte) (string, error) {
	if blob == "" {
		return "", nil
	}

	oldCipher, err := NewCipher(oldKey)
	if err != nil {
		return "", fmt.Errorf("rotate: old key: %w", err)
	}
	newCipher, err := NewCipher(newKey)
	if err != nil {
		return "", fmt.Errorf("rotate: new key: %w", err)
	}

	plaintext, err := oldCipher.Decrypt(blob)
	if err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	return newCipher.Encrypt(plaintext)
}
