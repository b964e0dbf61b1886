// Package fieldcrypt encrypts individual column values before they reach
// storage. Ciphertext is nonce || sealed(plaintext) under XChaCha20-Poly1305.
package fieldcrypt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey        = errors.New("fieldcrypt: key must be 32 bytes")
	ErrMalformedCipher   = errors.New("fieldcrypt: ciphertext too short")
	ErrAuthentication = errors.New("fieldcrypt: message authentication failed")
)

// Cipher encrypts and decrypts opaque field values.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AEAD is the XChaCha20-Poly1305 Cipher. The associated data binds every
// ciphertext to a purpose so a value copied between columns fails to decrypt.
type AEAD struct {
	key     []byte
	purpose []byte
}

// New creates a cipher from a 32-byte key.
func New(key []byte, purpose string) (*AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &AEAD{key: k, purpose: []byte(purpose)}, nil
}

// NewFromBase64 decodes a standard base64 key, as read from configuration.
func NewFromBase64(encoded, purpose string) (*AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: decode key: %w", err)
	}
	return New(key, purpose)
}

// GenerateKey returns a random base64 key suitable for NewFromBase64.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("fieldcrypt: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (a *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fieldcrypt: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, a.purpose), nil
}

func (a *AEAD) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedCipher
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, a.purpose)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

// Plaintext is the identity Cipher for development and tests.
type Plaintext struct{}

func (Plaintext) Encrypt(p []byte) ([]byte, error) { return append([]byte(nil), p...), nil }
func (Plaintext) Decrypt(c []byte) ([]byte, error) { return append([]byte(nil), c...), nil }
