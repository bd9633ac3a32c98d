// Package crypto provides encryption utilities for sensitive data like OAuth
// tokens. This is part of the Functional Core - all functions are pure with
// no I/O apart from reading the system random source for nonces.
//
// Tokens are encrypted at rest using AES-256-GCM.
// The encryption key is derived from a platform master secret with HKDF.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when decryption fails due to invalid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrEmptySecret is returned when deriving a key from an empty secret.
	ErrEmptySecret = errors.New("master secret is empty")
)

// =============================================================================
// Key Derivation
// =============================================================================

// tokenKeyInfo binds derived keys to their purpose.
const tokenKeyInfo = "dochero oauth token encryption v1"

// DeriveKey derives a 32-byte AES-256 key from a master secret using
// HKDF-SHA256. The derivation is deterministic.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM with the provided key.
// The key must be at least 32 bytes; only the first 32 are used.
//
// The ciphertext format is: nonce (12 bytes) || encrypted data || auth tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < 32 {
		return nil, ErrKeyTooShort
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// Base64 Encoding Variants
// =============================================================================

// EncryptToBase64 encrypts plaintext and returns base64-encoded ciphertext.
// Useful for storing encrypted data in text columns.
func EncryptToBase64(plaintext, key []byte) (string, error) {
	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptFromBase64 decrypts base64-encoded ciphertext.
func DecryptFromBase64(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return Decrypt(ciphertext, key)
}

// =============================================================================
// Token Sealer
// =============================================================================

// sealedPrefix marks values produced by Sealer.Seal.
const sealedPrefix = "enc:v1:"

// Sealer encrypts token strings for storage. A Sealer without a key passes
// values through unchanged, which keeps development databases readable.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer. A nil or empty key disables encryption.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{}, nil
	}
	if len(key) < 32 {
		return nil, ErrKeyTooShort
	}
	return &Sealer{key: key}, nil
}

// Enabled reports whether the sealer encrypts.
func (s *Sealer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Seal encrypts value. Empty values stay empty.
func (s *Sealer) Seal(value string) (string, error) {
	if value == "" || !s.Enabled() {
		return value, nil
	}
	enc, err := EncryptToBase64([]byte(value), s.key)
	if err != nil {
		return "", err
	}
	return sealedPrefix + enc, nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned as is, so rows written before encryption was enabled remain
// usable.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", ErrDecryptionFailed
	}
	plain, err := DecryptFromBase64(strings.TrimPrefix(value, sealedPrefix), s.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
