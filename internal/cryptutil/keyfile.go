package cryptutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// fallbackMachineID is used when /etc/machine-id cannot be read (containers
// without the file mounted, non-Linux test environments). It is a fixed,
// documented constant rather than a random value so that a key wrapped
// under it remains recoverable across restarts on the same misconfigured
// host.
const fallbackMachineID = "drivesync-fallback-machine-id-0000"

const machineIDPath = "/etc/machine-id"

// MachineID returns the OS machine identifier, or fallbackMachineID if the
// file is absent or unreadable.
func MachineID() []byte {
	data, err := os.ReadFile(machineIDPath)
	if err != nil {
		return []byte(fallbackMachineID)
	}
	return bytes.TrimSpace(data)
}

// LoadOrCreateKey loads the database key wrapped at path, generating and
// persisting a new random key if the keyfile does not exist. The returned
// key is always KeySize bytes.
//
// Keyfile format: salt(16) ‖ IV(12) ‖ wrapped_key_ciphertext ‖ tag(16).
func LoadOrCreateKey(path string) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createKeyfile(path)
	} else if err != nil {
		return nil, fmt.Errorf("cryptutil: stat keyfile %s: %w", path, err)
	}
	return loadKeyfile(path)
}

func createKeyfile(path string) ([]byte, error) {
	key, err := NewRandomKey()
	if err != nil {
		return nil, err
	}
	salt, err := NewRandomSalt()
	if err != nil {
		return nil, err
	}
	wrappingKey := Derive(MachineID(), salt)
	wrapped, err := Encrypt(key, wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: wrap new key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cryptutil: create keyfile dir: %w", err)
	}
	contents := make([]byte, 0, len(salt)+len(wrapped))
	contents = append(contents, salt...)
	contents = append(contents, wrapped...)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		return nil, fmt.Errorf("cryptutil: write keyfile: %w", err)
	}
	return key, nil
}

func loadKeyfile(path string) ([]byte, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: read keyfile: %w", err)
	}
	if len(contents) < SaltSize+minCiphertextLen {
		return nil, fmt.Errorf("cryptutil: keyfile %s is truncated", path)
	}
	salt := contents[:SaltSize]
	wrapped := contents[SaltSize:]

	wrappingKey := Derive(MachineID(), salt)
	key, err := Decrypt(wrapped, wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: unwrap keyfile %s: %w", path, err)
	}
	return key, nil
}
