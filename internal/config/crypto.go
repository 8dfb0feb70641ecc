package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	keySize = 32

	// sealedPrefix marks values sealed with the current format; legacyPrefix
	// values carry no associated data.
	sealedPrefix = "enc:v1:"
	legacyPrefix = "enc:"

	credentialAAD = "aule-router/credential"
	hkdfInfo      = "aule-router secret key"
)

// SecretKey seals provider credentials with AES-256-GCM.
type SecretKey struct {
	key  []byte
	aead func() (cipher.AEAD, error)
}

func newSecretKey(key []byte) *SecretKey {
	return &SecretKey{
		key: key,
		aead: sync.OnceValues(func() (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("aes cipher: %w", err)
			}
			return cipher.NewGCM(block)
		}),
	}
}

// NewSecretKey derives the key from ROUTER_SECRET_KEY when set. Otherwise it
// loads the key file (ROUTER_SECRET_FILE, default ~/.aule-router/secret.key),
// generating it on first run.
func NewSecretKey() (*SecretKey, error) {
	if raw := os.Getenv(EnvSecretKey); raw != "" {
		return NewSecretKeyFromPassphrase(raw), nil
	}

	keyPath := os.Getenv(EnvSecretFile)
	if keyPath == "" {
		keyPath = filepath.Join(homeDir(), ".aule-router", "secret.key")
	}
	return loadOrCreateKey(keyPath)
}

func loadOrCreateKey(path string) (*SecretKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := decodeKeyFile(data)
		if err != nil {
			return nil, fmt.Errorf("key file %s: %w", path, err)
		}
		return newSecretKey(key), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return newSecretKey(key), nil
}

// decodeKeyFile accepts a hex-encoded key, or a raw binary key of at least
// keySize bytes.
func decodeKeyFile(data []byte) ([]byte, error) {
	if text := strings.TrimSpace(string(data)); len(text) == hex.EncodedLen(keySize) {
		if key, err := hex.DecodeString(text); err == nil {
			return key, nil
		}
	}
	if len(data) >= keySize {
		return data[:keySize], nil
	}
	return nil, fmt.Errorf("key is %d bytes, need %d", len(data), keySize)
}

// NewSecretKeyFromPassphrase derives a 256-bit key from an arbitrary
// passphrase with HKDF-SHA256.
func NewSecretKeyFromPassphrase(passphrase string) *SecretKey {
	// HKDF only fails for oversized outputs.
	key, _ := hkdf.Key(sha256.New, []byte(passphrase), nil, hkdfInfo, keySize)
	return newSecretKey(key)
}

// Fingerprint identifies the key without revealing it.
func (s *SecretKey) Fingerprint() string {
	sum := sha256.Sum256(s.key)
	return hex.EncodeToString(sum[:4])
}

// Encrypt seals plaintext and returns it as "enc:v1:<base64(nonce|ciphertext)>".
// The empty string stays empty.
func (s *SecretKey) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(credentialAAD))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value. Values without a sealed prefix are returned
// unchanged.
func (s *SecretKey) Decrypt(encrypted string) (string, error) {
	var payload string
	var aad []byte
	switch {
	case strings.HasPrefix(encrypted, sealedPrefix):
		payload = strings.TrimPrefix(encrypted, sealedPrefix)
		aad = []byte(credentialAAD)
	case strings.HasPrefix(encrypted, legacyPrefix):
		payload = strings.TrimPrefix(encrypted, legacyPrefix)
	default:
		return encrypted, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// MaskSecret keeps only the last four characters: "****abcd".
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	return os.TempDir()
}
