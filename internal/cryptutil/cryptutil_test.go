package cryptutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey: %v", err)
	}

	cases := [][]byte{
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 16*1024*1024),
	}
	for _, plaintext := range cases {
		blob, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := Decrypt(blob, key)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(plaintext))
		}
	}
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey: %v", err)
	}
	blob, err := Encrypt([]byte("sensitive data"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := Decrypt(tampered, key); err == nil {
		t.Error("expected Decrypt to fail on tampered ciphertext")
	}
}

func TestDecryptRejectsShortBlob(t *testing.T) {
	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey: %v", err)
	}
	if _, err := Decrypt(make([]byte, 10), key); err != ErrCiphertextTooShort {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := Derive([]byte("password"), salt)
	k2 := Derive([]byte("password"), salt)
	if !bytes.Equal(k1, k2) {
		t.Error("Derive should be deterministic for same password/salt")
	}
	if len(k1) != KeySize {
		t.Errorf("derived key length = %d, want %d", len(k1), KeySize)
	}
}

func TestEncryptFileDecryptFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	original := []byte("file contents that must survive the round trip")
	if err := os.WriteFile(path, original, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey: %v", err)
	}

	if err := EncryptFile(path, key, 0o600); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}
	if !IsEncryptedFile(path) {
		t.Error("expected IsEncryptedFile to report true after EncryptFile")
	}

	if err := DecryptFile(path, key, 0o600); err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("decrypted contents = %q, want %q", got, original)
	}
}

func TestDecryptFileNoOpOnPlaintext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	original := []byte("never encrypted")
	if err := os.WriteFile(path, original, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	key, _ := NewRandomKey()
	if err := DecryptFile(path, key, 0o600); err != nil {
		t.Fatalf("DecryptFile on plaintext should be a no-op success: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("DecryptFile on non-magic file must leave contents untouched")
	}
}

func TestLoadOrCreateKeyPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", ".keyfile")

	key1, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (create): %v", err)
	}
	if len(key1) != KeySize {
		t.Fatalf("key length = %d, want %d", len(key1), KeySize)
	}

	key2, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (load): %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("second LoadOrCreateKey call should return the same persisted key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("keyfile permissions = %o, want 0600", info.Mode().Perm())
	}
}
