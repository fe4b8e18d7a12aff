package webpush

import (
	"crypto/ecdh"
	"encoding/binary"
	"errors"
	"fmt"
)

var errMalformedBody = errors.New("malformed aes128gcm body")

// Decrypt opens a single-record aes128gcm body with the subscriber's key and
// auth secret and returns the plaintext without padding or delimiter.
func Decrypt(uaPrivate *ecdh.PrivateKey, authSecret, body []byte) ([]byte, error) {
	if len(body) < headerLen+tagLen+1 {
		return nil, fmt.Errorf("%w: %d bytes", errMalformedBody, len(body))
	}
	salt := body[:saltLen]
	rs := binary.BigEndian.Uint32(body[saltLen : saltLen+4])
	idLen := int(body[saltLen+4])
	if idLen != PublicKeyLen {
		return nil, fmt.Errorf("%w: key id length %d", errMalformedBody, idLen)
	}
	if rs <= tagLen+1 {
		return nil, fmt.Errorf("%w: record size %d", errMalformedBody, rs)
	}
	asPublicRaw := body[saltLen+5 : headerLen]
	ciphertext := body[headerLen:]
	if uint64(len(ciphertext)) > uint64(rs) {
		return nil, fmt.Errorf("%w: multiple records are not supported", errMalformedBody)
	}

	asPublic, err := ecdh.P256().NewPublicKey(asPublicRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", errMalformedBody, err)
	}
	shared, err := uaPrivate.ECDH(asPublic)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	cek, nonce, err := contentKeys(shared, authSecret, uaPrivate.PublicKey().Bytes(), asPublicRaw, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(cek)
	if err != nil {
		return nil, err
	}
	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open record: %w", err)
	}

	// Padding is zero bytes after the delimiter.
	i := len(record) - 1
	for i >= 0 && record[i] == 0 {
		i--
	}
	if i < 0 || record[i] != lastRecordDelimiter {
		return nil, fmt.Errorf("%w: missing last-record delimiter", errMalformedBody)
	}
	return record[:i], nil
}
