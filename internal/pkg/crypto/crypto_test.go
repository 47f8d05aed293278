package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluegreen-cd/internal/pkg/config"
)

func setupAESKey(t *testing.T) {
	t.Helper()
	old := config.GlobalConfig
	config.GlobalConfig = &config.Config{
		Crypto: config.CryptoConfig{AESKey: "0123456789abcdef0123456789abcdef"},
	}
	t.Cleanup(func() { config.GlobalConfig = old })
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setupAESKey(t)

	ciphertext, err := Encrypt("minio-secret-key")
	require.NoError(t, err)
	assert.NotEqual(t, "minio-secret-key", ciphertext)

	plaintext, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "minio-secret-key", plaintext)
}

func TestDecryptRejectsTampered(t *testing.T) {
	setupAESKey(t)

	_, err := Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ=") // 比nonce还短
	assert.Error(t, err)
}

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckSecret("s3cret", hash))
	assert.False(t, CheckSecret("wrong", hash))
}
