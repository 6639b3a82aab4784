// Package crypto wraps the ChaCha20-Poly1305 AEAD behind the small surface
// the transport needs: a process-wide session key sealing and opening byte
// slices addressed by a 64-bit packet sequence. The sequence doubles as the
// nonce, so the caller's anti-replay check is also the nonce-uniqueness
// guarantee.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the session key length in bytes.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the IETF ChaCha20-Poly1305 nonce length in bytes.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the Poly1305 authentication tag length in bytes. Every
	// sealed record is exactly TagSize longer than its plaintext.
	TagSize = chacha20poly1305.Overhead
)

// ErrOpenFailed is returned when a ciphertext fails authentication. It
// deliberately carries no detail; the caller treats any open failure as
// corruption.
var ErrOpenFailed = errors.New("crypto: message authentication failed")

// Key is an immutable session key with its precomputed AEAD state. One key
// is created at process startup and shared by every channel; the zero value
// is unusable.
type Key struct {
	raw  [KeySize]byte
	aead cipher.AEAD
}

// NewKey generates a fresh random session key.
func NewKey() (*Key, error) {
	var raw [KeySize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return KeyFromBytes(raw[:])
}

// KeyFromBytes builds a key from exactly KeySize raw bytes.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(b))
	}
	k := &Key{}
	copy(k.raw[:], b)
	aead, err := chacha20poly1305.New(k.raw[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init aead: %w", err)
	}
	k.aead = aead
	return k, nil
}

// ParseKey decodes a base64 (standard encoding) key, the form in which the
// authenticator hands the session key to the server at registration.
func ParseKey(s string) (*Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key: %w", err)
	}
	return KeyFromBytes(raw)
}

// String returns the base64 form of the key.
func (k *Key) String() string {
	return base64.StdEncoding.EncodeToString(k.raw[:])
}

// Seal encrypts plaintext addressed by seq, appends the result (ciphertext
// plus tag) to dst and returns the extended slice. aad is authenticated but
// not encrypted.
func (k *Key) Seal(dst, plaintext, aad []byte, seq uint64) []byte {
	nonce := nonceFor(seq)
	return k.aead.Seal(dst, nonce[:], plaintext, aad)
}

// Open authenticates and decrypts a record produced by Seal with the same
// seq and aad, appending the plaintext to dst. Any mismatch in ciphertext,
// tag, aad or sequence yields ErrOpenFailed.
func (k *Key) Open(dst, ciphertext, aad []byte, seq uint64) ([]byte, error) {
	nonce := nonceFor(seq)
	plain, err := k.aead.Open(dst, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plain, nil
}

// nonceFor places the little-endian sequence in the trailing 8 bytes of the
// 12-byte nonce, leaving the leading 4 zero.
func nonceFor(seq uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[NonceSize-8:], seq)
	return nonce
}
