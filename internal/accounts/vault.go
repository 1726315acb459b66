package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"vidcast/internal/services"
)

// ErrCredentialCorrupt indicates a stored credential blob could not be
// decrypted or decoded.
var ErrCredentialCorrupt = fmt.Errorf("%w: credential blob corrupt", services.ErrCredentialInvalid)

// Vault seals and reveals account credentials with AES-256-GCM. Reveal is a
// pure decrypt: callers must not cache the plaintext beyond the current
// operation, and the plaintext is never logged.
type Vault struct {
	aead cipher.AEAD
}

// NewVault constructs a vault from a 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts a credential for storage. The nonce is prepended to the
// ciphertext.
func (v *Vault) Seal(cred Credential) ([]byte, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Reveal decrypts a sealed credential blob.
func (v *Vault) Reveal(blob []byte) (Credential, error) {
	nonceSize := v.aead.NonceSize()
	if len(blob) <= nonceSize {
		return Credential{}, ErrCredentialCorrupt
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credential{}, errors.Join(ErrCredentialCorrupt, err)
	}
	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return Credential{}, errors.Join(ErrCredentialCorrupt, err)
	}
	return cred, nil
}
