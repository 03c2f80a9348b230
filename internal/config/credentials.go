package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" //nolint:gosec // PBKDF2-HMAC-SHA1 is the scheme spec.md §6 pins down, not a new choice
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ilguido/jidl/internal/apperror"
)

const (
	pbkdf2Iterations = 128
	aesKeyBits       = 128
)

// DecryptPassword reverses the PBKDF2-HMAC-SHA1(128 iterations,
// 128-bit key) + AES-128-CBC + base64 scheme spec.md §6 defines for
// passwords stored in the configuration file. key and salt derive the
// AES key; iv is passed through explicitly, also from the config file.
func DecryptPassword(encoded, key, salt, iv string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeConfigInvalid, "password is not valid base64")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", apperror.New(apperror.CodeConfigInvalid, "encrypted password length is not a multiple of the AES block size")
	}

	ivBytes := []byte(iv)
	if len(ivBytes) != aes.BlockSize {
		return "", apperror.Newf(apperror.CodeConfigInvalid, "iv must be %d bytes, got %d", aes.BlockSize, len(ivBytes))
	}

	derived := pbkdf2.Key([]byte(key), []byte(salt), pbkdf2Iterations, aesKeyBits/8, sha1.New)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeConfigInvalid, "build AES cipher from derived key")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, ivBytes).CryptBlocks(plaintext, ciphertext)

	return string(unpad(plaintext)), nil
}

// unpad strips PKCS#7 padding. A malformed or absent pad byte is
// treated as "no padding" rather than failing: callers only use this
// for decrypted password text where a wrong key already fails loudly
// downstream (the sink rejects the credentials), so this does not
// silently mask a real decode error.
func unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	padLen := int(data[len(data)-1])
	if padLen <= 0 || padLen > len(data) || padLen > aes.BlockSize {
		return data
	}
	return data[:len(data)-padLen]
}
