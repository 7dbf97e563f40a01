package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Blob format: version(1) || nonce(12) || ciphertext(N).
const (
	blobVersion = 0x01
	nonceSize   = 12
	keySize     = 32
)

var (
	// ErrInvalidBlobSize is returned when an encrypted blob is too small
	// to contain the version byte, nonce and GCM tag.
	ErrInvalidBlobSize = errors.New("cacheguard/codec: encrypted blob is too small")

	// ErrUnsupportedBlobVersion is returned when the blob's version byte
	// does not match the version this codec writes.
	ErrUnsupportedBlobVersion = errors.New("cacheguard/codec: unsupported blob version")
)

// scryptN, scryptR and scryptP are interactive-login-cost defaults for
// passphrase-based key derivation.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Encrypting wraps an inner Codec with AES-256-GCM, deriving its key
// from a passphrase via scrypt rather than requiring callers to manage
// raw key bytes directly.
type Encrypting[V any] struct {
	inner Codec[V]
	gcm   cipher.AEAD
}

// NewEncrypting derives a 32-byte key from passphrase and salt via
// scrypt and wraps inner with AES-256-GCM encryption. salt should be
// fixed per deployment (e.g. derived from a namespace or key prefix) so
// the same passphrase always derives the same key.
func NewEncrypting[V any](inner Codec[V], passphrase string, salt []byte) (*Encrypting[V], error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("cacheguard/codec: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cacheguard/codec: create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cacheguard/codec: create GCM: %w", err)
	}

	return &Encrypting[V]{inner: inner, gcm: gcm}, nil
}

// Encode serializes v with the inner codec, then seals it.
func (e *Encrypting[V]) Encode(v V) ([]byte, error) {
	plaintext, err := e.inner.Encode(v)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cacheguard/codec: generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = blobVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

// Decode opens a sealed blob and deserializes the plaintext with the
// inner codec.
func (e *Encrypting[V]) Decode(blob []byte) (V, error) {
	var zero V

	minSize := 1 + nonceSize + e.gcm.Overhead()
	if len(blob) < minSize {
		return zero, ErrInvalidBlobSize
	}

	if blob[0] != blobVersion {
		return zero, fmt.Errorf("%w: got %d", ErrUnsupportedBlobVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	ciphertext := blob[1+nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return zero, fmt.Errorf("cacheguard/codec: decrypt: %w", err)
	}

	return e.inner.Decode(plaintext)
}
