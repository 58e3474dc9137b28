// Package cipher turns raw hex commands into the bytes written to a blind
// and back.
package cipher

import (
	"crypto/aes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey     = errors.New("cipher: invalid key")
	ErrInvalidPayload = errors.New("cipher: invalid payload")
)

// Plain hex-decodes commands without encrypting them. The simulated
// peripheral and tests use it.
type Plain struct{}

// Encrypt implements blinds.Cipher
func (Plain) Encrypt(raw string) ([]byte, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return b, nil
}

// Decrypt implements blinds.Cipher
func (Plain) Decrypt(data []byte) (string, error) {
	return hex.EncodeToString(data), nil
}

// AES encrypts hex-decoded commands block by block (ECB) with a 128-bit key,
// zero-padding the last block. Decrypted output is lowercase hex with the
// padding left in place; callers match on prefixes.
type AES struct {
	key []byte
}

// NewAES builds an AES cipher from a 32 character hex key
func NewAES(hexKey string) (*AES, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: need 16 bytes, got %d", ErrInvalidKey, len(key))
	}
	return &AES{key: key}, nil
}

// Encrypt implements blinds.Cipher
func (c *AES) Encrypt(raw string) ([]byte, error) {
	plain, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	size := block.BlockSize()
	padded := make([]byte, ((len(plain)+size-1)/size)*size)
	copy(padded, plain)

	out := make([]byte, len(padded))
	for off := 0; off < len(padded); off += size {
		block.Encrypt(out[off:off+size], padded[off:off+size])
	}
	return out, nil
}

// Decrypt implements blinds.Cipher
func (c *AES) Decrypt(data []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	size := block.BlockSize()
	if len(data) == 0 || len(data)%size != 0 {
		return "", fmt.Errorf("%w: length %d is not a multiple of %d", ErrInvalidPayload, len(data), size)
	}

	out := make([]byte, len(data))
	for off := 0; off < len(data); off += size {
		block.Decrypt(out[off:off+size], data[off:off+size])
	}
	return hex.EncodeToString(out), nil
}

// Cipher is what New returns; blinds.Cipher has the same method set
type Cipher interface {
	Encrypt(raw string) ([]byte, error)
	Decrypt(data []byte) (string, error)
}

// New returns the cipher named by kind ("aes" or "plain")
func New(kind, hexKey string) (Cipher, error) {
	switch strings.ToLower(kind) {
	case "plain", "":
		return Plain{}, nil
	case "aes":
		return NewAES(hexKey)
	default:
		return nil, fmt.Errorf("%w: unknown cipher %q", ErrInvalidKey, kind)
	}
}
