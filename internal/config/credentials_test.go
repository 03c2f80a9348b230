package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" //nolint:gosec // matches the scheme under test
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// encryptForTest is the inverse of DecryptPassword, used only to build
// fixtures: it is not part of the production decryption path.
func encryptForTest(t *testing.T, plaintext, key, salt, iv string) string {
	t.Helper()

	derived := pbkdf2.Key([]byte(key), []byte(salt), pbkdf2Iterations, aesKeyBits/8, sha1.New)
	block, err := aes.NewCipher(derived)
	require.NoError(t, err)

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), make([]byte, padLen)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

func TestDecryptPasswordRoundTrip(t *testing.T) {
	key, salt, iv := "correct-horse", "a-salt-value", "0123456789abcdef"
	encoded := encryptForTest(t, "s3cr3t!", key, salt, iv)

	got, err := DecryptPassword(encoded, key, salt, iv)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t!", got)
}

func TestDecryptPasswordRejectsBadInput(t *testing.T) {
	_, err := DecryptPassword("not base64!!", "k", "s", "0123456789abcdef")
	require.Error(t, err)

	_, err = DecryptPassword(base64.StdEncoding.EncodeToString([]byte("short")), "k", "s", "0123456789abcdef")
	require.Error(t, err)

	encoded := encryptForTest(t, "value", "k", "s", "0123456789abcdef")
	_, err = DecryptPassword(encoded, "k", "s", "too-short-iv")
	require.Error(t, err)
}
