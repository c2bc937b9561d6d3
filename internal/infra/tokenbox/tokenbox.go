// Package tokenbox seals OAuth tokens at rest with NaCl secretbox.
package tokenbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrNoKey     = errors.New("tokenbox: encryption key is not configured")
	ErrMalformed = errors.New("tokenbox: malformed ciphertext")
	ErrOpen      = errors.New("tokenbox: decryption failed")
)

// Box encrypts and decrypts short secrets.
type Box struct {
	key   *[32]byte
	ready bool
}

// New derives a box from key material. A 64 character hex string is used
// directly as the key; anything else is hashed with SHA-256. An empty key
// yields a box that refuses to seal.
func New(material string) *Box {
	b := &Box{key: new([32]byte)}
	if material == "" {
		return b
	}
	if raw, err := hex.DecodeString(material); err == nil && len(raw) == 32 {
		copy(b.key[:], raw)
	} else {
		sum := sha256.Sum256([]byte(material))
		copy(b.key[:], sum[:])
	}
	b.ready = true
	return b
}

// Seal encrypts plaintext and returns base64(nonce || box). The empty string
// seals to the empty string.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if !b.ready {
		return "", ErrNoKey
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, b.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !b.ready {
		return "", ErrNoKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrMalformed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}
