// Package keyfile seals secrets at rest under a passphrase.
//
// Layout: "gpk1" | salt(16) | nonce(24) | XChaCha20-Poly1305(secret).
// The key is Argon2id(passphrase, salt); the magic is authenticated as AAD.
package keyfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/goph-push/internal/crypto"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

var magic = []byte("gpk1")

// ErrBadPassphrase is returned when the file does not open under the passphrase.
var ErrBadPassphrase = errors.New("keyfile: wrong passphrase or corrupted file")

// DeriveKey derives the sealing key from passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// Seal encrypts secret under passphrase with a fresh salt and nonce.
func Seal(passphrase, secret []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("keyfile: empty passphrase")
	}
	salt, err := crypto.RandBytes(SaltLen)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(magic)+SaltLen+len(nonce)+len(secret)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret, magic), nil
}

// Open decrypts a sealed blob.
func Open(passphrase, sealed []byte) ([]byte, error) {
	hdr := len(magic) + SaltLen + chacha20poly1305.NonceSizeX
	if len(sealed) < hdr+chacha20poly1305.Overhead || !bytes.Equal(sealed[:len(magic)], magic) {
		return nil, errors.New("keyfile: not a sealed key file")
	}
	salt := sealed[len(magic) : len(magic)+SaltLen]
	nonce := sealed[len(magic)+SaltLen : hdr]
	aead, err := chacha20poly1305.NewX(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, sealed[hdr:], magic)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return pt, nil
}

// WriteFile seals secret and writes it with owner-only permissions.
func WriteFile(path string, passphrase, secret []byte) error {
	sealed, err := Seal(passphrase, secret)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

// ReadFile reads and opens a sealed file.
func ReadFile(path string, passphrase []byte) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return Open(passphrase, b)
}
