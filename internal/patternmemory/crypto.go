package patternmemory

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/hkdf"
)

func newHKDFHash() hash.Hash { return sha256.New() }

// MasterKeyEnvVar is the environment variable holding the 64-hex-char
// (32-byte) master key used to seal pattern solution payloads at rest.
const MasterKeyEnvVar = "CORTEXDX_PATTERN_KEY"

var (
	randReader io.Reader = rand.Reader
	newGCM               = func(block cipher.Block) (cipher.AEAD, error) { return cipher.NewGCM(block) }
)

// CryptoManager seals and opens pattern solution payloads with AES-256-GCM,
// deriving purpose-scoped subkeys from a single master key via HKDF so a
// compromise of one derived key does not expose the master.
type CryptoManager struct {
	masterKey []byte

	warnOnce sync.Once
}

// NewCryptoManager sources the master key from MasterKeyEnvVar. In a
// production environment (env == "production"), an absent or malformed key
// is fatal. In any other environment, a missing key falls back to an
// ephemeral random key generated once and reused for the process lifetime,
// with a visible warning on first use — patterns encrypted under it do not
// survive a restart.
func NewCryptoManager(env string) (*CryptoManager, error) {
	raw := os.Getenv(MasterKeyEnvVar)
	if raw == "" {
		if env == "production" {
			return nil, fmt.Errorf("%s is required in production", MasterKeyEnvVar)
		}
		key := make([]byte, 32)
		if _, err := io.ReadFull(randReader, key); err != nil {
			return nil, fmt.Errorf("generate ephemeral pattern key: %w", err)
		}
		cm := &CryptoManager{masterKey: key}
		cm.warnOnce.Do(func() {
			fmt.Fprintf(os.Stderr, "cortexdx: %s not set; using an ephemeral in-memory pattern encryption key (development mode only, patterns will not survive a restart)\n", MasterKeyEnvVar)
		})
		return cm, nil
	}

	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%s must be 64 hex characters (32 bytes)", MasterKeyEnvVar)
	}
	return &CryptoManager{masterKey: key}, nil
}

// DeriveKey produces a purpose-scoped subkey of the given length from the
// master key via HKDF-SHA256. Calling it twice with the same purpose and
// length yields the same key; different purposes yield independent keys.
func (cm *CryptoManager) DeriveKey(purpose string, length int) ([]byte, error) {
	if cm == nil || len(cm.masterKey) == 0 {
		return nil, errors.New("patternmemory: crypto manager has no master key")
	}
	if purpose == "" {
		return nil, errors.New("patternmemory: DeriveKey requires a non-empty purpose")
	}
	if length <= 0 {
		return nil, errors.New("patternmemory: DeriveKey requires a positive length")
	}
	kdf := hkdf.New(newHKDFHash, cm.masterKey, nil, []byte(purpose))
	out := make([]byte, length)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("derive key for %q: %w", purpose, err)
	}
	return out, nil
}

// Encrypt seals plaintext with AES-256-GCM under a key derived for
// purpose "pattern-solution", prefixing the ciphertext with a random
// 96-bit nonce.
func (cm *CryptoManager) Encrypt(plaintext []byte) ([]byte, error) {
	key, err := cm.DeriveKey("pattern-solution", 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: new cipher: %w", err)
	}
	gcm, err := newGCM(block)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("patternmemory: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (cm *CryptoManager) Decrypt(ciphertext []byte) ([]byte, error) {
	key, err := cm.DeriveKey("pattern-solution", 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: new cipher: %w", err)
	}
	gcm, err := newGCM(block)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("patternmemory: ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptString is Encrypt for a string payload, base64-encoding the
// result so it is safe to store in a text column.
func (cm *CryptoManager) EncryptString(s string) (string, error) {
	ciphertext, err := cm.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString is Decrypt for a base64-encoded payload produced by
// EncryptString.
func (cm *CryptoManager) DecryptString(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("patternmemory: invalid base64: %w", err)
	}
	plaintext, err := cm.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
