package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestEncryptDecryptWithNonce(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext := EncryptWithNonce(plaintext, nil, aead)
	if len(ciphertext) <= len(plaintext) {
		t.Fatalf("ciphertext should carry nonce+tag overhead, got %d bytes for %d byte plaintext", len(ciphertext), len(plaintext))
	}

	decrypted, err := DecryptWithNonce(ciphertext, nil, aead)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("decrypted plaintext does not match original: got %q want %q", decrypted, plaintext)
	}
}

func TestDecryptWithNonceTooShort(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptWithNonce([]byte("short"), nil, aead); err != ErrInsufficientLen {
		t.Fatalf("expected ErrInsufficientLen, got %v", err)
	}
}

func TestDecryptWithNonceTamperedFailsAuthentication(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext := EncryptWithNonce([]byte("hello"), nil, aead)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := DecryptWithNonce(ciphertext, nil, aead); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}
