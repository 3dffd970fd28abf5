package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// KeySize is the required key length (AES-256).
	KeySize = 32
	// IVSize matches the GCM nonce length we use. 16 bytes rather than the
	// GCM default of 12 to stay wire-compatible with payloads produced by
	// the portal's earlier field-encryption tooling.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

var (
	// ErrInvalidKey is returned when the key is not exactly KeySize bytes.
	// Keys are never truncated or padded.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")

	// ErrAuthenticationFailed is the uniform decrypt failure. It deliberately
	// does not distinguish a wrong key from a tampered payload.
	ErrAuthenticationFailed = errors.New("payload authentication failed")
)

// EncryptedPayload is the result of Encrypt: ciphertext plus the per-call
// random IV and the GCM authentication tag, kept as separate fields so
// callers can store them in separate columns.
type EncryptedPayload struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Encrypt seals plaintext with AES-256-GCM under key. A fresh random IV is
// drawn on every call; reusing an IV under the same key would void the
// authenticity guarantee.
func Encrypt(plaintext, key []byte) (EncryptedPayload, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return EncryptedPayload{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedPayload{}, err
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the tag to the ciphertext
	n := len(sealed) - TagSize
	return EncryptedPayload{
		Ciphertext: sealed[:n],
		IV:         iv,
		AuthTag:    sealed[n:],
	}, nil
}

// Decrypt opens p with key. Any modification to ciphertext, IV, or tag, and
// any wrong key, yields ErrAuthenticationFailed.
func Decrypt(p EncryptedPayload, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(p.IV) != IVSize || len(p.AuthTag) != TagSize {
		return nil, ErrAuthenticationFailed
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+TagSize)
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.AuthTag...)

	plaintext, err := aead.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encode serializes p as iv:authTag:ciphertext in lowercase hex, the storage
// format used for encrypted fields.
func (p EncryptedPayload) Encode() string {
	return hex.EncodeToString(p.IV) + ":" + hex.EncodeToString(p.AuthTag) + ":" + hex.EncodeToString(p.Ciphertext)
}

// ParseEncrypted reverses Encode.
func ParseEncrypted(s string) (EncryptedPayload, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return EncryptedPayload{}, ErrAuthenticationFailed
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return EncryptedPayload{}, ErrAuthenticationFailed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return EncryptedPayload{}, ErrAuthenticationFailed
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return EncryptedPayload{}, ErrAuthenticationFailed
	}
	return EncryptedPayload{Ciphertext: ct, IV: iv, AuthTag: tag}, nil
}

// SHA256Hex computes the SHA-256 digest of data as a lowercase hex string.
// One-way fingerprinting only, not suitable for password storage.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// GenerateToken returns 32 bytes from the OS CSPRNG, hex encoded (64 chars).
func GenerateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// ConstantTimeEquals compares a and b in time independent of where they first
// differ. Inputs of different lengths are handled by comparing fixed-length
// digests instead of short-circuiting on length.
func ConstantTimeEquals(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
