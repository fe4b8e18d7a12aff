package webpush

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
)

// VAPID token lifetime. RFC 8292 caps exp at 24h from now.
const (
	DefaultTokenTTL = 12 * time.Hour
	maxTokenTTL     = 24 * time.Hour
)

// Signer builds VAPID Authorization headers for a fixed contact address.
// It holds no key material; the key pair is supplied on every call.
type Signer struct {
	subject string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner returns a signer whose tokens carry contact as the "sub" claim.
// A bare address gets a "mailto:" prefix; mailto: and https: URIs are kept as is.
func NewSigner(contact string) *Signer {
	return &Signer{subject: subjectURI(contact), ttl: DefaultTokenTTL, now: time.Now}
}

// Subject returns the "sub" claim value.
func (s *Signer) Subject() string { return s.subject }

func subjectURI(contact string) string {
	c := strings.TrimSpace(contact)
	if strings.HasPrefix(c, "mailto:") || strings.HasPrefix(c, "https:") {
		return c
	}
	return "mailto:" + c
}

// Audience returns the origin (scheme and host) of a push endpoint.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("%w: endpoint: %v", errs.ErrInvalidSubscription, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: endpoint must be an absolute http(s) URL", errs.ErrInvalidSubscription)
	}
	return u.Scheme + "://" + u.Host, nil
}

// AuthHeader returns "vapid t=<jwt>, k=<public key>" scoped to the endpoint's origin.
func (s *Signer) AuthHeader(endpoint string, kp model.VapidKeyPair) (string, error) {
	key, err := signingKey(kp)
	if err != nil {
		return "", err
	}
	aud, err := Audience(endpoint)
	if err != nil {
		return "", err
	}

	ttl := s.ttl
	if ttl <= 0 || ttl > maxTokenTTL {
		ttl = DefaultTokenTTL
	}
	claims := jwt.MapClaims{
		"aud": aud,
		"exp": s.now().Add(ttl).Unix(),
		"sub": s.subject,
	}
	// ES256 JWS signatures are the raw 64-byte r||s form, not DER.
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign vapid token: %w", err)
	}
	return "vapid t=" + token + ", k=" + EncodeKey(kp.PublicKey), nil
}

// signingKey rebuilds an ECDSA key from the raw pair: X and Y are the two
// halves of the uncompressed point, D is the scalar.
func signingKey(kp model.VapidKeyPair) (*ecdsa.PrivateKey, error) {
	if err := ValidateVapidKeyPair(kp); err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(kp.PublicKey[1:33]),
			Y:     new(big.Int).SetBytes(kp.PublicKey[33:65]),
		},
		D: new(big.Int).SetBytes(kp.PrivateKey),
	}, nil
}
