package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const codecVersion byte = 1

// ErrNotEncrypted is returned by SecretCodec.Decrypt for values that are not
// in the host's encrypted form.
var ErrNotEncrypted = errors.New("value is not an encrypted secret")

// SecretParser turns a user or storage supplied string into a Secret.
// It reports false when no secret can be produced.
type SecretParser func(value string) (Secret, bool)

// SecretCodec encrypts secrets for redisplay and storage by the host.
// Encrypted values look like "{base64(version || nonce || ciphertext)}".
type SecretCodec struct {
	aead cipher.AEAD
}

// NewSecretCodec builds a codec from a 32-byte AES-256 key.
func NewSecretCodec(key []byte) (*SecretCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &SecretCodec{aead: gcm}, nil
}

// NewSecretCodecFromString decodes a base64 key, as found in configuration.
func NewSecretCodecFromString(encoded string) (*SecretCodec, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return NewSecretCodec(key)
}

// Encrypt returns the encrypted form of s.
func (c *SecretCodec) Encrypt(s Secret) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(s.value)+c.aead.Overhead())
	out = append(out, codecVersion)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(s.value), nil)
	return "{" + base64.StdEncoding.EncodeToString(out) + "}", nil
}

// Decrypt reverses Encrypt. Values that are not wrapped in braces or do not
// decode as base64 yield ErrNotEncrypted.
func (c *SecretCodec) Decrypt(value string) (Secret, error) {
	if len(value) < 2 || value[0] != '{' || value[len(value)-1] != '}' {
		return Secret{}, ErrNotEncrypted
	}
	data, err := base64.StdEncoding.DecodeString(value[1 : len(value)-1])
	if err != nil {
		return Secret{}, ErrNotEncrypted
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < 1+nonceSize || data[0] != codecVersion {
		return Secret{}, ErrNotEncrypted
	}
	nonce, ciphertext := data[1:1+nonceSize], data[1+nonceSize:]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Secret{}, fmt.Errorf("gcm.Open: %w", err)
	}
	return NewSecret(string(plain)), nil
}

// IsEncrypted reports whether value decrypts with this codec.
func (c *SecretCodec) IsEncrypted(value string) bool {
	_, err := c.Decrypt(value)
	return err == nil
}

// ParseSecret decodes value with codec when it is an encrypted blob and
// wraps it verbatim otherwise. A nil codec treats every value as plain text.
// The empty string yields false.
func ParseSecret(codec *SecretCodec, value string) (Secret, bool) {
	if value == "" {
		return Secret{}, false
	}
	if codec != nil {
		if s, err := codec.Decrypt(value); err == nil {
			return s, true
		}
	}
	return NewSecret(value), true
}

// Parser binds codec into a SecretParser.
func (c *SecretCodec) Parser() SecretParser {
	return func(value string) (Secret, bool) {
		return ParseSecret(c, value)
	}
}
