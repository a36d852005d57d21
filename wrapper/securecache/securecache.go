// Package securecache wraps a condcache.Cache with at-rest protection. Cache
// keys are always replaced by their SHA-256 digest so stored key material
// never reveals the URLs being cached. With a passphrase configured, values
// are additionally encrypted with AES-256-GCM using a key derived via scrypt.
package securecache

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/condcache/condcache"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation
	scryptN = 32768
	// scryptR is the block size parameter for scrypt
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt
	scryptP = 1
	// keyLength is the desired key length for AES-256
	keyLength = 32
	// nonceSize is the size of the GCM nonce
	nonceSize = 12
)

// defaultSalt seeds key derivation when no Salt is configured. Deployments
// sharing a backend should configure distinct salts so derived keys differ
// even under an identical passphrase.
var defaultSalt = sha256.Sum256([]byte("condcache-securecache-salt-v1"))

// SecureCache wraps an existing cache implementation to add security features:
// SHA-256 hashing of all cache keys (always enabled) and optional AES-256-GCM
// encryption of cached data (when a passphrase is provided).
type SecureCache struct {
	cache condcache.Cache
	gcm   cipher.AEAD
}

var _ condcache.Cache = (*SecureCache)(nil)

// Config holds the configuration for creating a SecureCache.
type Config struct {
	// Cache is the underlying cache implementation to wrap.
	// Required.
	Cache condcache.Cache

	// Passphrase is the secret used to encrypt/decrypt cached data.
	// Must be kept secret and consistent across application restarts.
	// Optional - when empty, only key hashing is performed (no encryption).
	Passphrase string

	// Salt feeds scrypt key derivation together with the passphrase.
	// Optional - defaults to a fixed package salt.
	Salt []byte
}

// New creates a new SecureCache that wraps the provided cache.
// Keys are always hashed with SHA-256. If a passphrase is provided, cached
// data is encrypted with AES-256-GCM.
func New(config Config) (*SecureCache, error) {
	if config.Cache == nil {
		return nil, errors.New("securecache: cache is required")
	}

	sc := &SecureCache{cache: config.Cache}

	if config.Passphrase != "" {
		salt := config.Salt
		if len(salt) == 0 {
			salt = defaultSalt[:]
		}
		gcm, err := newGCM(config.Passphrase, salt)
		if err != nil {
			return nil, fmt.Errorf("securecache: initialize encryption: %w", err)
		}
		sc.gcm = gcm
	}

	return sc, nil
}

// newGCM derives an AES-256 key from the passphrase with scrypt and returns
// the GCM AEAD built on it.
func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// hashKey converts a cache key to its SHA-256 hash representation.
func (sc *SecureCache) hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// encrypt seals data with a fresh random nonce prepended to the ciphertext.
func (sc *SecureCache) encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, sc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// #nosec G407 -- nonce is randomly generated above using crypto/rand, not hardcoded
	return sc.gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt opens data sealed by encrypt; the nonce is read from the prefix.
func (sc *SecureCache) decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce := data[:nonceSize]
	ciphertext := data[nonceSize:]

	plaintext, err := sc.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Get retrieves a cached value. The key is hashed with SHA-256 before lookup
// and the data is decrypted when encryption is enabled. A value that fails to
// decrypt reports a miss alongside the error; it is unreadable under the
// current passphrase, not absent.
func (sc *SecureCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	hashedKey := sc.hashKey(key)
	data, ok, err := sc.cache.Get(ctx, hashedKey)
	if err != nil || !ok {
		return nil, false, err
	}

	if sc.gcm != nil {
		plaintext, err := sc.decrypt(data)
		if err != nil {
			condcache.GetLogger().Warn("failed to decrypt cached data", "key", hashedKey, "error", err)
			return nil, false, err
		}
		return plaintext, true, nil
	}

	return data, true, nil
}

// Set stores a value in the cache. The key is hashed with SHA-256 before
// storage and the data is encrypted when encryption is enabled.
func (sc *SecureCache) Set(ctx context.Context, key string, data []byte) error {
	hashedKey := sc.hashKey(key)

	toStore := data
	if sc.gcm != nil {
		encrypted, err := sc.encrypt(data)
		if err != nil {
			return fmt.Errorf("securecache: %w", err)
		}
		toStore = encrypted
	}

	return sc.cache.Set(ctx, hashedKey, toStore)
}

// Delete removes a value from the cache. The key is hashed with SHA-256
// before deletion.
func (sc *SecureCache) Delete(ctx context.Context, key string) error {
	return sc.cache.Delete(ctx, sc.hashKey(key))
}

// IsEncrypted returns true if the cache is configured with encryption.
func (sc *SecureCache) IsEncrypted() bool {
	return sc.gcm != nil
}
