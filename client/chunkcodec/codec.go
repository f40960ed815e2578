// Package chunkcodec implements the AEAD chunk envelope: a little-endian
// format_version, a 12-byte random nonce, and the AEAD ciphertext-with-tag.
// format_version 1 is the only version this build accepts; any other
// value fails fast with ErrSchemaUnsupported.
package chunkcodec

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/uplo-tech/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/obnam-mirror/obnam2/crypto"
)

// FormatVersion is the only envelope version this build produces or
// accepts.
const FormatVersion uint32 = 1

const versionSize = 4

// ErrSchemaUnsupported is returned by Decrypt when the envelope's
// format_version is not FormatVersion.
var ErrSchemaUnsupported = errors.New("chunk envelope format_version is not supported")

// ErrAuthenticationFailed is returned by Decrypt when the AEAD tag does not
// verify: either the key is wrong or the envelope was tampered with.
var ErrAuthenticationFailed = errors.New("chunk envelope failed authentication")

// Codec encrypts and decrypts chunk envelopes with a single fixed
// encryption key, derived by the key manager.
type Codec struct {
	aead cipher.AEAD
}

// New builds a Codec around a ChaCha20-Poly1305 AEAD keyed by key, using
// the standard 96-bit nonce fixed into the envelope layout.
func New(key [32]byte) (*Codec, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.AddContext(err, "could not construct AEAD cipher")
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext, with associatedData bound into (but not hidden
// by) the AEAD tag, into a versioned envelope ready to upload as a chunk
// body.
func (c *Codec) Encrypt(plaintext, associatedData []byte) []byte {
	sealed := crypto.EncryptWithNonce(plaintext, associatedData, c.aead)

	envelope := make([]byte, versionSize+len(sealed))
	binary.LittleEndian.PutUint32(envelope, FormatVersion)
	copy(envelope[versionSize:], sealed)
	return envelope
}

// Decrypt opens envelope, verifying it was produced with the same key and
// associatedData. A format_version other than 1 is rejected before any
// cryptographic work is attempted.
func (c *Codec) Decrypt(envelope, associatedData []byte) ([]byte, error) {
	if len(envelope) < versionSize+c.aead.NonceSize() {
		return nil, errors.New("chunk envelope is too short to be valid")
	}
	version := binary.LittleEndian.Uint32(envelope[:versionSize])
	if version != FormatVersion {
		return nil, ErrSchemaUnsupported
	}

	plaintext, err := crypto.DecryptWithNonce(envelope[versionSize:], associatedData, c.aead)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
