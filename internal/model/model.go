// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued API access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// PushSubscription is a browser push subscription owned by a member.
// P256dh and Auth hold the base64url strings exactly as the browser reported them.
type PushSubscription struct {
	ID        uuid.UUID // server-generated PK
	MemberID  uuid.UUID // owner
	Endpoint  string    // push service URL, unique
	P256dh    string    // base64url(65-byte uncompressed P-256 point)
	Auth      string    // base64url(16-byte auth secret)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VapidKeyPair is the application server identity (RFC 8292).
// It is loaded once at startup and passed explicitly to every call.
type VapidKeyPair struct {
	PublicKey  []byte // 65-byte uncompressed P-256 point
	PrivateKey []byte // 32-byte scalar
}

// NotificationPayload is the JSON document delivered to the service worker.
type NotificationPayload json.RawMessage

// Notification is the common title/body/url/tag payload shape.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Payload marshals n into a NotificationPayload.
func (n Notification) Payload() (NotificationPayload, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return NotificationPayload(b), nil
}

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// OutcomeTransient covers 429, 5xx, unexpected statuses and network errors.
	OutcomeTransient Outcome = iota
	// OutcomeDelivered is any 2xx response.
	OutcomeDelivered
	// OutcomeGone is 404 or 410: the subscription is permanently invalid.
	OutcomeGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeGone:
		return "gone"
	default:
		return "transient"
	}
}

// DeliveryResult is the outcome of one POST to a push service.
type DeliveryResult struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Outcome    Outcome
	Err        error // transport error or non-2xx detail, nil on success
}

// Success reports whether the push service accepted the message.
func (r DeliveryResult) Success() bool { return r.Outcome == OutcomeDelivered }

// DispatchSummary aggregates a fan-out batch.
type DispatchSummary struct {
	Sent    int
	Failed  int
	Removed int
	Skipped int // not attempted because the batch deadline passed
}
