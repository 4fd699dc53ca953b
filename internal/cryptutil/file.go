package cryptutil

import (
	"bytes"
	"fmt"
	"os"
)

// MagicPrefix identifies a file produced by EncryptFile.
var MagicPrefix = []byte("PDCRYPT1")

// IsEncryptedFile reports whether path exists and begins with MagicPrefix.
// A missing file, or one shorter than the prefix, is reported as not
// encrypted rather than as an error.
func IsEncryptedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, len(MagicPrefix))
	n, err := f.Read(buf)
	if err != nil || n < len(MagicPrefix) {
		return false
	}
	return bytes.Equal(buf, MagicPrefix)
}

// EncryptFile reads path, encrypts its contents under key, and atomically
// replaces it with MagicPrefix‖IV‖ciphertext‖tag. The replacement writes a
// temp file in the same directory then renames over the original; on any
// failure the temp file is removed and the original is left untouched.
func EncryptFile(path string, key []byte, perm os.FileMode) error {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cryptutil: read %s: %w", path, err)
	}
	blob, err := Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("cryptutil: encrypt %s: %w", path, err)
	}

	tmpPath := path + ".enc.tmp"
	out := make([]byte, 0, len(MagicPrefix)+len(blob))
	out = append(out, MagicPrefix...)
	out = append(out, blob...)
	if err := os.WriteFile(tmpPath, out, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: rename temp file for %s: %w", path, err)
	}
	return nil
}

// DecryptFile reverses EncryptFile in place. Decrypting a file that does
// not carry MagicPrefix is a no-op success, since the file is assumed to
// already be plaintext (e.g. a fresh index with no prior shutdown cycle).
func DecryptFile(path string, key []byte, perm os.FileMode) error {
	if !IsEncryptedFile(path) {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cryptutil: read %s: %w", path, err)
	}
	blob := raw[len(MagicPrefix):]
	plaintext, err := Decrypt(blob, key)
	if err != nil {
		return fmt.Errorf("cryptutil: decrypt %s: %w", path, err)
	}

	tmpPath := path + ".dec.tmp"
	if err := os.WriteFile(tmpPath, plaintext, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cryptutil: rename temp file for %s: %w", path, err)
	}
	return nil
}
