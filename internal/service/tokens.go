package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTTL is the lifetime of an API access token.
const DefaultAccessTTL = 24 * time.Hour

// Claims are the API access token claims. Subject is the member UUID.
type Claims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	MemberID uuid.UUID
	Admin    bool
}

// TokenIssuer mints and verifies HS256 API access tokens.
type TokenIssuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer; ttl <= 0 means DefaultAccessTTL.
func NewTokenIssuer(signKey []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &TokenIssuer{signKey: signKey, ttl: ttl, now: time.Now}
}

// Issue creates a signed token for memberID.
func (i *TokenIssuer) Issue(memberID uuid.UUID, admin bool) (model.Tokens, error) {
	if memberID == uuid.Nil {
		return model.Tokens{}, fmt.Errorf("%w: member id", errs.ErrValidation)
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify checks signature and validity window and returns the caller.
func (i *TokenIssuer) Verify(token string) (Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Caller{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return Caller{MemberID: id, Admin: claims.Admin}, nil
}

// TokenService issues and verifies access tokens.
type TokenService interface {
	Issue(memberID uuid.UUID, admin bool) (model.Tokens, error)
	Verify(token string) (Caller, error)
}

var _ TokenService = (*TokenIssuer)(nil)
