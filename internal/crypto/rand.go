// Package crypto holds randomness helpers shared by the message encryptor and key tooling.
package crypto

import (
	"crypto/rand"
	"io"
)

// Reader is the entropy source for salts and ephemeral keys.
var Reader io.Reader = rand.Reader

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
