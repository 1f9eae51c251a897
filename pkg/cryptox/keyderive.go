package cryptox

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length used for token envelopes.
const KeySize = 32

// KeyDerivation selects how the configured secret becomes the envelope key.
type KeyDerivation string

const (
	// DeriveHKDF runs the secret through HKDF-SHA256.
	DeriveHKDF KeyDerivation = "hkdf"

	// DeriveLegacy zero-pads or truncates the secret to KeySize bytes. It is
	// not a KDF and only exists so tokens minted by older deployments still
	// open.
	DeriveLegacy KeyDerivation = "legacy"
)

var ErrEmptySecret = errors.New("cryptox: empty secret")

var hkdfInfo = []byte("starter/token-envelope/v1")

// DeriveKey turns secret into a KeySize-byte key using the given mode.
func DeriveKey(secret []byte, mode KeyDerivation) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	switch mode {
	case DeriveHKDF, "":
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
			return nil, fmt.Errorf("hkdf: %w", err)
		}
		return key, nil

	case DeriveLegacy:
		key := make([]byte, KeySize)
		copy(key, secret)
		return key, nil

	default:
		return nil, fmt.Errorf("cryptox: unknown key derivation %q", mode)
	}
}
