// Package xcrypto provides the optional AES-256-GCM encryption used by the
// journal to protect pre-images at rest.
package xcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
)

// Constants for AES-256-GCM encryption.
const (
	NonceSize = 12
	TagSize   = 16
	KeySize   = 32
)

// Errors returned by key operations.
var (
	ErrInvalidKey        = errors.New("xcrypto: key must be 32 bytes")
	ErrDecryptFailed     = errors.New("xcrypto: decryption failed")
	ErrInvalidCiphertext = errors.New("xcrypto: ciphertext too short")
	ErrKeyFileNotFound   = errors.New("xcrypto: key file not found")
	ErrInvalidKeyFormat  = errors.New("xcrypto: key file must hold 32 raw bytes or 64 hex chars")
)

// Key holds an AES-256 key and its associated AEAD cipher.
type Key struct {
	raw    []byte
	cipher cipher.AEAD
}

// New builds a Key from 32 raw bytes.
func New(key []byte) (*Key, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, KeySize)
	copy(raw, key)
	return &Key{raw: raw, cipher: gcm}, nil
}

// Generate returns a fresh random 256-bit key.
func Generate() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadFromFile loads a key from a file holding either 32 raw bytes or a
// 64-character hex string.
func LoadFromFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyFileNotFound
		}
		return nil, err
	}

	var key []byte
	if len(data) == KeySize {
		key = data
	} else {
		trimmed := []byte(strings.TrimSpace(string(data)))
		switch len(trimmed) {
		case KeySize:
			key = trimmed
		case KeySize * 2:
			key = make([]byte, KeySize)
			if _, err := hex.Decode(key, trimmed); err != nil {
				return nil, ErrInvalidKeyFormat
			}
		default:
			return nil, ErrInvalidKeyFormat
		}
	}

	return New(key)
}

// SaveToFile writes key to path as hex text.
func SaveToFile(key []byte, path string) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600)
}

// Encrypt seals plaintext under a freshly generated nonce, returning
// nonce||ciphertext||tag.
func (k *Key) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return k.cipher.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (k *Key) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}
	nonce := ciphertext[:NonceSize]
	sealed := ciphertext[NonceSize:]

	plaintext, err := k.cipher.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Bytes returns a copy of the raw key material.
func (k *Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.raw)
	return out
}

// Clear zeroes the key material in place.
func (k *Key) Clear() {
	for i := range k.raw {
		k.raw[i] = 0
	}
}
