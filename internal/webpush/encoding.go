// Package webpush implements the Web Push message protocol pieces needed by an
// application server: VAPID authentication (RFC 8292), aes128gcm payload
// encryption (RFC 8291) and delivery to a push service.
package webpush

import (
	"encoding/base64"
	"strings"
)

// EncodeKey returns the unpadded base64url form used in headers and subscriptions.
func EncodeKey(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeKey decodes base64url with or without padding.
// Some clients serialize keys with the standard alphabet, so that is accepted too.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		if b2, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return b2, nil
		}
		return nil, err
	}
	return b, nil
}
