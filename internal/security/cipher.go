package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "v1:"

var hkdfInfo = []byte("promptcraft user credential v1")

// ErrNoCipherKey indicates a sealed value was found but no key is configured.
var ErrNoCipherKey = errors.New("security: credential encryption key not configured")

// Cipher seals and opens user credentials at rest with XChaCha20-Poly1305.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a key from secret. An empty secret yields a nil Cipher,
// which stores values unsealed.
func NewCipher(secret string) (*Cipher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, errRead := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); errRead != nil {
		return nil, fmt.Errorf("security: derive key: %w", errRead)
	}
	aead, errNew := chacha20poly1305.NewX(key)
	if errNew != nil {
		return nil, fmt.Errorf("security: init cipher: %w", errNew)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext. additional binds the value to its owner (user id + provider).
func (c *Cipher) Seal(plaintext, additional string) (string, error) {
	if c == nil {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, errRand := rand.Read(nonce); errRand != nil {
		return "", fmt.Errorf("security: nonce: %w", errRand)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(additional))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix are
// returned as-is.
func (c *Cipher) Open(value, additional string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoCipherKey
	}
	raw, errDecode := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if errDecode != nil {
		return "", fmt.Errorf("security: decode sealed value: %w", errDecode)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", errors.New("security: sealed value too short")
	}
	plain, errOpen := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(additional))
	if errOpen != nil {
		return "", fmt.Errorf("security: open sealed value: %w", errOpen)
	}
	return string(plain), nil
}

// CredentialAAD returns the additional data binding a credential to its owner.
func CredentialAAD(userID, provider string) string {
	return userID + "|" + provider
}
