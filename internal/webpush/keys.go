package webpush

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
)

// Key sizes fixed by P-256 and RFC 8291.
const (
	PublicKeyLen  = 65 // uncompressed point: 0x04 || X || Y
	PrivateKeyLen = 32
	AuthSecretLen = 16
)

const uncompressedPoint = 0x04

// GenerateVapidKeyPair creates a fresh P-256 application server key pair.
func GenerateVapidKeyPair() (model.VapidKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return model.VapidKeyPair{}, err
	}
	return model.VapidKeyPair{
		PublicKey:  priv.PublicKey().Bytes(),
		PrivateKey: priv.Bytes(),
	}, nil
}

// ParseVapidKeyPair decodes base64url keys and checks that they form a P-256 pair.
func ParseVapidKeyPair(publicB64, privateB64 string) (model.VapidKeyPair, error) {
	pub, err := DecodeKey(publicB64)
	if err != nil {
		return model.VapidKeyPair{}, fmt.Errorf("%w: public key: %v", errs.ErrInvalidVapidKeys, err)
	}
	priv, err := DecodeKey(privateB64)
	if err != nil {
		return model.VapidKeyPair{}, fmt.Errorf("%w: private key: %v", errs.ErrInvalidVapidKeys, err)
	}
	kp := model.VapidKeyPair{PublicKey: pub, PrivateKey: priv}
	if err := ValidateVapidKeyPair(kp); err != nil {
		return model.VapidKeyPair{}, err
	}
	return kp, nil
}

// ValidateVapidKeyPair checks sizes, the point marker, and that the private
// scalar derives the public point.
func ValidateVapidKeyPair(kp model.VapidKeyPair) error {
	if len(kp.PublicKey) != PublicKeyLen || kp.PublicKey[0] != uncompressedPoint {
		return fmt.Errorf("%w: public key must be a %d-byte uncompressed point", errs.ErrInvalidVapidKeys, PublicKeyLen)
	}
	if len(kp.PrivateKey) != PrivateKeyLen {
		return fmt.Errorf("%w: private key must be %d bytes, got %d", errs.ErrInvalidVapidKeys, PrivateKeyLen, len(kp.PrivateKey))
	}
	priv, err := ecdh.P256().NewPrivateKey(kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: private key: %v", errs.ErrInvalidVapidKeys, err)
	}
	if !bytes.Equal(priv.PublicKey().Bytes(), kp.PublicKey) {
		return fmt.Errorf("%w: public key does not match private key", errs.ErrInvalidVapidKeys)
	}
	return nil
}

// SubscriberKeys decodes and validates the p256dh and auth values of sub.
// The endpoint must also be usable as a VAPID audience.
func SubscriberKeys(sub model.PushSubscription) (publicKey, authSecret []byte, err error) {
	if _, err := Audience(sub.Endpoint); err != nil {
		return nil, nil, err
	}
	publicKey, err = DecodeKey(sub.P256dh)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: p256dh: %v", errs.ErrInvalidSubscription, err)
	}
	authSecret, err = DecodeKey(sub.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: auth: %v", errs.ErrInvalidSubscription, err)
	}
	if _, err := parseSubscriberKey(publicKey, authSecret); err != nil {
		return nil, nil, err
	}
	return publicKey, authSecret, nil
}

// parseSubscriberKey enforces the subscription invariants and parses the point.
func parseSubscriberKey(publicKey, authSecret []byte) (*ecdh.PublicKey, error) {
	if len(publicKey) != PublicKeyLen || publicKey[0] != uncompressedPoint {
		return nil, fmt.Errorf("%w: p256dh must be a %d-byte uncompressed point, got %d bytes",
			errs.ErrInvalidSubscription, PublicKeyLen, len(publicKey))
	}
	if len(authSecret) != AuthSecretLen {
		return nil, fmt.Errorf("%w: auth must be %d bytes, got %d", errs.ErrInvalidSubscription, AuthSecretLen, len(authSecret))
	}
	pub, err := ecdh.P256().NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: p256dh: %v", errs.ErrInvalidSubscription, err)
	}
	return pub, nil
}
