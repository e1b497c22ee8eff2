package patternmemory

import (
	"os"
	"testing"
)

func TestNewCryptoManagerUsesEnvKey(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}
	if len(cm.masterKey) != 32 {
		t.Fatalf("expected 32-byte master key, got %d", len(cm.masterKey))
	}
}

func TestNewCryptoManagerRejectsMalformedKey(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "not-hex-and-too-short")
	if _, err := NewCryptoManager("development"); err == nil {
		t.Fatal("expected error for malformed master key")
	}
}

func TestNewCryptoManagerProductionRequiresKey(t *testing.T) {
	os.Unsetenv(MasterKeyEnvVar)
	if _, err := NewCryptoManager("production"); err == nil {
		t.Fatal("expected error when key is absent in production")
	}
}

func TestNewCryptoManagerDevFallsBackToEphemeralKey(t *testing.T) {
	os.Unsetenv(MasterKeyEnvVar)
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}
	if len(cm.masterKey) != 32 {
		t.Fatalf("expected 32-byte ephemeral key, got %d", len(cm.masterKey))
	}
}

func TestDeriveKeyDeterministicAndPurposeScoped(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}

	first, err := cm.DeriveKey("pattern-solution", 32)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	second, err := cm.DeriveKey("pattern-solution", 32)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("DeriveKey should be deterministic for the same purpose")
	}

	other, err := cm.DeriveKey("other-purpose", 32)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if string(first) == string(other) {
		t.Fatal("DeriveKey should produce distinct keys for distinct purposes")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}

	plaintext := []byte("solution payload with [REDACTED] already applied")
	ciphertext, err := cm.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("Encrypt() returned plaintext unchanged")
	}

	decrypted, err := cm.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptDecryptStringRoundTrip(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}

	encoded, err := cm.EncryptString("hello pattern memory")
	if err != nil {
		t.Fatalf("EncryptString() error: %v", err)
	}
	decoded, err := cm.DecryptString(encoded)
	if err != nil {
		t.Fatalf("DecryptString() error: %v", err)
	}
	if decoded != "hello pattern memory" {
		t.Fatalf("DecryptString() = %q, want %q", decoded, "hello pattern memory")
	}
}

func TestEncryptionIsNonDeterministicPerCall(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}

	a, _ := cm.Encrypt([]byte("same plaintext"))
	b, _ := cm.Encrypt([]byte("same plaintext"))
	if string(a) == string(b) {
		t.Fatal("encrypting the same plaintext twice produced identical ciphertext (nonce reuse?)")
	}
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	t.Setenv(MasterKeyEnvVar, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	cm, err := NewCryptoManager("development")
	if err != nil {
		t.Fatalf("NewCryptoManager() error: %v", err)
	}
	if _, err := cm.Decrypt([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error decrypting data too short to contain a nonce")
	}
}
