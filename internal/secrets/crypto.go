package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Box seals and opens small secrets (provider credentials) for at-rest storage
// using ChaCha20-Poly1305. The key is derived from a configured passphrase.
type Box struct {
	key []byte
}

// NewBox derives a sealing key from the passphrase. The passphrase must be at
// least 32 characters.
func NewBox(passphrase string) (*Box, error) {
	if len(passphrase) < 32 {
		return nil, errors.New("encryption passphrase must be at least 32 characters")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &Box{key: sum[:]}, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (b *Box) Open(blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decrypt failed")
	}
	return plaintext, nil
}
