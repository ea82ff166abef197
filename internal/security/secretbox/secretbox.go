// Package secretbox seals short strings (cookie payloads) with AES-256-GCM.
// Each Box derives its own subkey from the master key via HKDF, so the
// oauth-state cookie and the session cookies never share key material.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// RequiredKeyLength is the master key size: 32 bytes => AES-256.
	RequiredKeyLength = 32

	nonceSizeGCM = 12
	sep          = "." // base64url(nonce) "." base64url(ciphertext)
)

var (
	ErrBadKey       = errors.New("secretbox: master key must be 32 bytes")
	ErrMalformed    = errors.New("secretbox: malformed sealed value")
	ErrOpenFailed   = errors.New("secretbox: decryption failed")
	ErrEmptyPurpose = errors.New("secretbox: purpose must not be empty")
)

// Box seals and opens values for a single purpose. Safe for concurrent use.
type Box struct {
	aead cipher.AEAD
}

// New derives a purpose-scoped subkey from master and returns a ready Box.
// Distinct purposes yield unrelated subkeys.
func New(master []byte, purpose string) (*Box, error) {
	if len(master) != RequiredKeyLength {
		return nil, ErrBadKey
	}
	if strings.TrimSpace(purpose) == "" {
		return nil, ErrEmptyPurpose
	}

	sub := make([]byte, RequiredKeyLength)
	kdf := hkdf.New(sha256.New, master, nil, []byte("storefront/"+purpose))
	if _, err := io.ReadFull(kdf, sub); err != nil {
		return nil, fmt.Errorf("secretbox: derive subkey: %w", err)
	}

	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseMasterKey decodes a base64 master key from configuration.
// Accepts standard and raw (unpadded) encodings.
func ParseMasterKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("secretbox: master key not set; generate one with: openssl rand -base64 32")
	}
	k, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		k, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode master key: %w", err)
	}
	if len(k) != RequiredKeyLength {
		return nil, ErrBadKey
	}
	return k, nil
}

// Seal encrypts plain and returns a cookie-safe string.
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(nonce) + sep + base64.RawURLEncoding.EncodeToString(ct), nil
}

// Open decrypts a value produced by Seal. Tampering yields ErrOpenFailed.
func (b *Box) Open(sealed string) (string, error) {
	i := strings.IndexByte(sealed, sep[0])
	if i <= 0 || i == len(sealed)-1 {
		return "", ErrMalformed
	}
	nonce, err := base64.RawURLEncoding.DecodeString(sealed[:i])
	if err != nil || len(nonce) != nonceSizeGCM {
		return "", ErrMalformed
	}
	ct, err := base64.RawURLEncoding.DecodeString(sealed[i+1:])
	if err != nil {
		return "", ErrMalformed
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(pt), nil
}
