// Package cryptutil implements the engine's authenticated-encryption
// contract: AES-256-GCM with no associated data, PBKDF2-HMAC-SHA-256 key
// derivation, and whole-file encrypt/decrypt with a fixed magic prefix.
//
// Every primitive here fails soft: on error it returns a nil/empty result
// alongside a non-nil error, logs nothing itself (callers own logging), and
// never panics. Callers must check the error.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16
	// PBKDF2Iterations is the iteration count used for key derivation.
	PBKDF2Iterations = 100_000

	// minCiphertextLen is the smallest possible Encrypt output: an empty
	// plaintext still produces IV+tag.
	minCiphertextLen = IVSize + TagSize
)

// ErrCiphertextTooShort is returned by Decrypt when the input cannot
// possibly contain an IV and tag.
var ErrCiphertextTooShort = errors.New("cryptutil: ciphertext shorter than IV+tag")

// ErrAuthenticationFailed is returned by Decrypt when the GCM tag does not
// verify, meaning the key is wrong or the blob was tampered with.
var ErrAuthenticationFailed = errors.New("cryptutil: authentication failed")

// Encrypt returns IV‖ciphertext‖tag for plaintext under key (must be
// KeySize bytes), using AES-256-GCM with a fresh random IV and no AAD.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptutil: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new gcm: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cryptutil: read random iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	out := make([]byte, 0, IVSize+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt. It fails if blob is shorter than IV+tag or the
// GCM tag does not authenticate.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptutil: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(blob) < minCiphertextLen {
		return nil, ErrCiphertextTooShort
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: new gcm: %w", err)
	}
	iv := blob[:IVSize]
	sealed := blob[IVSize:]
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Derive produces a KeySize-byte key from password and salt using
// PBKDF2-HMAC-SHA-256 at PBKDF2Iterations rounds.
func Derive(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, PBKDF2Iterations, KeySize, sha256.New)
}

// NewRandomKey returns a fresh, cryptographically random KeySize-byte key.
func NewRandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptutil: read random key: %w", err)
	}
	return key, nil
}

// NewRandomSalt returns a fresh, cryptographically random SaltSize-byte
// salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptutil: read random salt: %w", err)
	}
	return salt, nil
}
