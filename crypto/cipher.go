package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// nonceSequenceOffset is where the little-endian sequence sits inside the
// 12-byte nonce. Bytes before it are zero.
const nonceSequenceOffset = NonceSize - 8

// Key is a ChaCha20-Poly1305 key.
type Key [KeySize]byte

// KeyFromBytes copies key material into a Key, rejecting the wrong length.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// SequenceNonce derives the nonce for a sequence number. Sequences are unique
// per key, so nonces never repeat under packet reordering or duplication.
func SequenceNonce(sequence uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[nonceSequenceOffset:], sequence)
	return nonce
}

// Cipher is the stateless AEAD engine. It only holds the prepared AEAD
// instance for one key, so callers may share it across goroutines.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher prepares a ChaCha20-Poly1305 instance for the key.
func NewCipher(key Key) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal appends ciphertext||tag for plaintext to dst. The header bytes are
// authenticated as associated data.
func (c *Cipher) Seal(dst []byte, sequence uint64, header, plaintext []byte) []byte {
	nonce := SequenceNonce(sequence)
	return c.aead.Seal(dst, nonce[:], plaintext, header)
}

// Open verifies and decrypts ciphertext||tag, appending the plaintext to dst.
// Any verification failure is reported as ErrAuthFailure.
func (c *Cipher) Open(dst []byte, sequence uint64, header, sealed []byte) ([]byte, error) {
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("%w: sealed payload shorter than tag", ErrAuthFailure)
	}
	nonce := SequenceNonce(sequence)
	out, err := c.aead.Open(dst, nonce[:], sealed, header)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return out, nil
}

// Encrypt seals plaintext and returns ciphertext and tag separately.
func Encrypt(key Key, sequence uint64, header, plaintext []byte) (ciphertext, tag []byte, err error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := c.Seal(nil, sequence, header, plaintext)
	split := len(sealed) - TagSize
	return sealed[:split], sealed[split:], nil
}

// Decrypt verifies tag over ciphertext and returns the plaintext.
func Decrypt(key Key, sequence uint64, header, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag length %d", ErrAuthFailure, len(tag))
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return c.Open(nil, sequence, header, sealed)
}
