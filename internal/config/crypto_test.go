package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretKey_SealOpen(t *testing.T) {
	t.Setenv(EnvSecretKey, "unit-test-passphrase")

	sk, err := NewSecretKey()
	require.NoError(t, err)

	for name, plaintext := range map[string]string{
		"api_key":  "sk-abc123def456xyz",
		"long":     "sk-proj-" + strings.Repeat("x", 120),
		"symbols":  "sk-+/=!@#$%^&*()",
		"unicode":  "chave-secreta-ção",
		"one_char": "k",
	} {
		t.Run(name, func(t *testing.T) {
			sealed, err := sk.Encrypt(plaintext)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(sealed, "enc:v1:"), sealed)
			assert.NotEqual(t, plaintext, strings.TrimPrefix(sealed, "enc:v1:"))

			opened, err := sk.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
		})
	}
}

func TestSecretKey_EmptyStaysEmpty(t *testing.T) {
	sealed, err := NewSecretKeyFromPassphrase("p").Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)
}

func TestSecretKey_NoncesDiffer(t *testing.T) {
	sk := NewSecretKeyFromPassphrase("p")
	a, err := sk.Encrypt("same")
	require.NoError(t, err)
	b, err := sk.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretKey_UnsealedValuePassesThrough(t *testing.T) {
	got, err := NewSecretKeyFromPassphrase("p").Decrypt("plain-text-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-text-value", got)
}

func TestSecretKey_WrongKeyFails(t *testing.T) {
	sealed, err := NewSecretKeyFromPassphrase("one").Encrypt("sk-secret")
	require.NoError(t, err)

	_, err = NewSecretKeyFromPassphrase("two").Decrypt(sealed)
	assert.Error(t, err)
}

func TestSecretKey_RejectsTamperedAndTruncated(t *testing.T) {
	sk := NewSecretKeyFromPassphrase("p")

	_, err := sk.Decrypt("enc:v1:not base64!")
	assert.Error(t, err)

	_, err = sk.Decrypt("enc:v1:" + base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "too short")

	sealed, err := sk.Encrypt("sk-secret")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, "enc:v1:"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = sk.Decrypt("enc:v1:" + base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestSecretKey_OpensLegacyFormat(t *testing.T) {
	sk := NewSecretKeyFromPassphrase("legacy")

	block, err := aes.NewCipher(sk.key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	legacy := "enc:" + base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte("sk-old"), nil))

	got, err := sk.Decrypt(legacy)
	require.NoError(t, err)
	assert.Equal(t, "sk-old", got)
}

func TestSecretKey_Fingerprint(t *testing.T) {
	a := NewSecretKeyFromPassphrase("a")
	assert.Len(t, a.Fingerprint(), 8)
	assert.Equal(t, a.Fingerprint(), NewSecretKeyFromPassphrase("a").Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), NewSecretKeyFromPassphrase("b").Fingerprint())
}

func TestNewSecretKey_PersistsGeneratedKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvSecretKey, "")
	t.Setenv(EnvSecretFile, "")

	first, err := NewSecretKey()
	require.NoError(t, err)

	path := filepath.Join(home, ".aule-router", "secret.key")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = hex.DecodeString(strings.TrimSpace(string(data)))
	assert.NoError(t, err, "key file is hex encoded")

	sealed, err := first.Encrypt("sk-roundtrip")
	require.NoError(t, err)

	second, err := NewSecretKey()
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	opened, err := second.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-roundtrip", opened)
}

func TestNewSecretKey_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "router.key")
	t.Setenv(EnvSecretKey, "")
	t.Setenv(EnvSecretFile, path)

	_, err := NewSecretKey()
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestNewSecretKey_RawBinaryKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.key")
	raw := make([]byte, keySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	t.Setenv(EnvSecretKey, "")
	t.Setenv(EnvSecretFile, path)

	sk, err := NewSecretKey()
	require.NoError(t, err)
	assert.Equal(t, raw, sk.key)
}

func TestNewSecretKey_ShortKeyFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o600))
	t.Setenv(EnvSecretKey, "")
	t.Setenv(EnvSecretFile, path)

	_, err := NewSecretKey()
	assert.ErrorContains(t, err, "need 32")
}

func TestMaskSecret(t *testing.T) {
	for input, want := range map[string]string{
		"":                            "",
		"ab":                          "****",
		"abcd":                        "****",
		"sk-abc123def":                "****3def",
		"sk-proj-very-long-key-12345": "****2345",
	} {
		assert.Equal(t, want, MaskSecret(input), input)
	}
}
