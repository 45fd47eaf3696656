package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	key, err := LoadKey(KeyConfig{
		RawPrivateKey:    "0x" + testKeyHex,
		EncryptedKeyPath: "/nonexistent/key.json",
	})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, key)
}

func TestLoadKeyRejectsBadHex(t *testing.T) {
	_, err := LoadKey(KeyConfig{RawPrivateKey: "not-hex"})
	assert.Error(t, err)
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, key)
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestLoadECDSAKey(t *testing.T) {
	key, err := LoadECDSAKey(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	assert.NotNil(t, key)
}
