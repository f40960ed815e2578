// Package crypto provides low-level AEAD helpers used by the backup
// client's chunk codec. It deliberately knows nothing about chunk envelopes
// or key derivation; envelopes live in client/chunkcodec, which builds on
// top of it, and key derivation lives in client/keymgr.
package crypto

import (
	"crypto/cipher"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
)

// ErrInsufficientLen is returned when a ciphertext is too short to even
// contain a nonce, let alone an AEAD tag.
var ErrInsufficientLen = errors.New("ciphertext is too short to contain a nonce")

// EncryptWithNonce encrypts plaintext with aead, generating a fresh random
// nonce of aead.NonceSize() bytes and prepending it to the returned
// ciphertext. associatedData is bound into the AEAD tag without being
// hidden by it; pass nil when the caller has none.
func EncryptWithNonce(plaintext, associatedData []byte, aead cipher.AEAD) []byte {
	nonce := fastrand.Bytes(aead.NonceSize())
	return aead.Seal(nonce, nonce, plaintext, associatedData)
}

// DecryptWithNonce decrypts ciphertext with aead, reading the nonce back off
// its front exactly as EncryptWithNonce left it.
func DecryptWithNonce(ciphertext, associatedData []byte, aead cipher.AEAD) ([]byte, error) {
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrInsufficientLen
	}
	nonce, ciphertext := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, associatedData)
}
