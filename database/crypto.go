package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	cipherKeySize = 32
	saltSize      = 16
)

// ErrDecryptionFailed indicates a stored value could not be decrypted,
// usually a wrong passphrase or a tampered database.
var ErrDecryptionFailed = errors.New("decryption failed")

// Cipher encrypts original entity names at rest and produces deterministic
// keyed lookup hashes so exact-match queries work without decrypting rows.
// Field encryption and lookup hashing use independent HKDF-derived keys.
type Cipher struct {
	aead      cipher.AEAD
	lookupKey []byte
}

// DeriveKey stretches a passphrase into a master key with argon2id
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, cipherKeySize)
}

// NewSalt returns a fresh random salt for key derivation
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// NewCipher derives the field-encryption and lookup keys from a master key
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) < cipherKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes", cipherKeySize)
	}

	encKey := make([]byte, cipherKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("voile-field-encryption")), encKey); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	lookupKey := make([]byte, cipherKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("voile-lookup-hash")), lookupKey); err != nil {
		return nil, fmt.Errorf("derive lookup key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Cipher{aead: aead, lookupKey: lookupKey}, nil
}

// Seal encrypts a value, prepending the random nonce
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal
func (c *Cipher) Open(data []byte) ([]byte, error) {
	if len(data) < c.aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// LookupHash computes the deterministic keyed hash of a normalized lookup
// key. Empty keys hash to nil so optional components stay NULL in storage.
func (c *Cipher) LookupHash(key string) []byte {
	if key == "" {
		return nil
	}
	mac := hmac.New(sha256.New, c.lookupKey)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}
