package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// envelopeVersion prefixes every envelope and is bound as additional data, so
// a future format change cannot be confused with this one.
const envelopeVersion byte = 1

// ErrAuthentication is returned for any envelope that does not decode,
// has the wrong shape, or fails the GCM tag check. Callers cannot tell these
// apart on purpose.
var ErrAuthentication = errors.New("cryptox: envelope authentication failed")

// Strict rejects non-canonical trailing bits, so every character of the
// string is covered by the tag.
var envelopeEncoding = base64.RawURLEncoding.Strict()

// Sealer encrypts payloads into compact, URL-safe envelopes using
// AES-256-GCM. The format is base64url(version || nonce || ciphertext || tag).
//
// A Sealer is immutable after construction and safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer around a KeySize-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptox: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts and authenticates plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonceSize := s.aead.NonceSize()

	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+s.aead.Overhead())
	buf[0] = envelopeVersion
	if _, err := io.ReadFull(rand.Reader, buf[1:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := s.aead.Seal(buf, buf[1:1+nonceSize], plaintext, buf[:1])
	return envelopeEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts an envelope produced by Seal.
func (s *Sealer) Open(envelope string) ([]byte, error) {
	raw, err := envelopeEncoding.DecodeString(envelope)
	if err != nil {
		return nil, ErrAuthentication
	}

	nonceSize := s.aead.NonceSize()
	if len(raw) < 1+nonceSize+s.aead.Overhead() || raw[0] != envelopeVersion {
		return nil, ErrAuthentication
	}

	nonce, ciphertext := raw[1:1+nonceSize], raw[1+nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, raw[:1])
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}
