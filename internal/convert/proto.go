// Package convert maps domain values to and from the protobuf Struct
// documents used on the wire.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"
)

// --- helpers ---

func str(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// --- Subscriptions ---

// SubscriptionInput is what a client submits to subscribe.
type SubscriptionInput struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// FromStructSubscription reads a subscription submitted either flat
// ({endpoint, p256dh, auth}) or in the browser's PushSubscription.toJSON()
// shape ({endpoint, keys: {p256dh, auth}}).
func FromStructSubscription(s *structpb.Struct) (SubscriptionInput, error) {
	if s == nil {
		return SubscriptionInput{}, fmt.Errorf("%w: nil subscription", errs.ErrValidation)
	}
	in := SubscriptionInput{
		Endpoint: str(s, "endpoint"),
		P256dh:   str(s, "p256dh"),
		Auth:     str(s, "auth"),
	}
	if keys := s.GetFields()["keys"].GetStructValue(); keys != nil {
		if in.P256dh == "" {
			in.P256dh = str(keys, "p256dh")
		}
		if in.Auth == "" {
			in.Auth = str(keys, "auth")
		}
	}
	if in.Endpoint == "" || in.P256dh == "" || in.Auth == "" {
		return SubscriptionInput{}, fmt.Errorf("%w: endpoint, p256dh and auth are required", errs.ErrValidation)
	}
	return in, nil
}

// ToStructSubscription renders a stored subscription for clients.
func ToStructSubscription(sub model.PushSubscription) (*structpb.Struct, error) {
	return structpb.NewStruct(subscriptionMap(sub))
}

func subscriptionMap(sub model.PushSubscription) map[string]any {
	m := map[string]any{
		"id":        sub.ID.String(),
		"member_id": sub.MemberID.String(),
		"endpoint":  sub.Endpoint,
		"keys":      map[string]any{"p256dh": sub.P256dh, "auth": sub.Auth},
	}
	if v := ts(sub.CreatedAt); v != nil {
		m["created_at"] = v
	}
	if v := ts(sub.UpdatedAt); v != nil {
		m["updated_at"] = v
	}
	return m
}

// ToStructSubscriptions wraps a list as {subscriptions: [...]}.
func ToStructSubscriptions(subs []model.PushSubscription) (*structpb.Struct, error) {
	list := make([]any, 0, len(subs))
	for _, s := range subs {
		list = append(list, subscriptionMap(s))
	}
	return structpb.NewStruct(map[string]any{"subscriptions": list})
}

// FromStructSubscriptions is the client-side inverse of ToStructSubscriptions.
func FromStructSubscriptions(s *structpb.Struct) ([]model.PushSubscription, error) {
	vals := s.GetFields()["subscriptions"].GetListValue().GetValues()
	out := make([]model.PushSubscription, 0, len(vals))
	for i, v := range vals {
		sv := v.GetStructValue()
		if sv == nil {
			return nil, fmt.Errorf("subscription[%d]: not an object", i)
		}
		sub := model.PushSubscription{Endpoint: str(sv, "endpoint")}
		var err error
		if sub.ID, err = parseOptionalUUID(str(sv, "id")); err != nil {
			return nil, fmt.Errorf("subscription[%d]: id: %w", i, err)
		}
		if sub.MemberID, err = parseOptionalUUID(str(sv, "member_id")); err != nil {
			return nil, fmt.Errorf("subscription[%d]: member_id: %w", i, err)
		}
		if keys := sv.GetFields()["keys"].GetStructValue(); keys != nil {
			sub.P256dh, sub.Auth = str(keys, "p256dh"), str(keys, "auth")
		}
		if sub.CreatedAt, err = parseOptionalTime(str(sv, "created_at")); err != nil {
			return nil, fmt.Errorf("subscription[%d]: created_at: %w", i, err)
		}
		if sub.UpdatedAt, err = parseOptionalTime(str(sv, "updated_at")); err != nil {
			return nil, fmt.Errorf("subscription[%d]: updated_at: %w", i, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func parseOptionalUUID(s string) (u.UUID, error) {
	if s == "" {
		return u.Nil, nil
	}
	return u.FromString(s)
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// --- Notify ---

// MemberID reads and parses the "member_id" field.
func MemberID(s *structpb.Struct) (u.UUID, error) {
	raw := str(s, "member_id")
	id, err := u.FromString(raw)
	if err != nil || id == u.Nil {
		return u.Nil, fmt.Errorf("%w: member_id %q", errs.ErrValidation, raw)
	}
	return id, nil
}

// FromStructPayload extracts the "payload" field as a JSON document.
// A string value is taken as already-encoded JSON.
func FromStructPayload(s *structpb.Struct) (model.NotificationPayload, error) {
	v, ok := s.GetFields()["payload"]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: payload is required", errs.ErrValidation)
	}
	if sv, isString := v.GetKind().(*structpb.Value_StringValue); isString {
		b := []byte(sv.StringValue)
		if !json.Valid(b) {
			return nil, fmt.Errorf("%w: payload string is not JSON", errs.ErrValidation)
		}
		return model.NotificationPayload(b), nil
	}
	b, err := json.Marshal(v.AsInterface())
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", errs.ErrValidation, err)
	}
	return model.NotificationPayload(b), nil
}

// ToStructPayload builds a request carrying payload under "payload" plus extra fields.
func ToStructPayload(payload model.NotificationPayload, extra map[string]any) (*structpb.Struct, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	m := map[string]any{"payload": doc}
	for k, v := range extra {
		m[k] = v
	}
	return structpb.NewStruct(m)
}

// --- Summary ---

// ToStructSummary renders dispatch counters.
func ToStructSummary(sum model.DispatchSummary) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"sent":    structpb.NewNumberValue(float64(sum.Sent)),
		"failed":  structpb.NewNumberValue(float64(sum.Failed)),
		"removed": structpb.NewNumberValue(float64(sum.Removed)),
		"skipped": structpb.NewNumberValue(float64(sum.Skipped)),
	}}
}

// FromStructSummary is the client-side inverse of ToStructSummary.
func FromStructSummary(s *structpb.Struct) model.DispatchSummary {
	n := func(k string) int { return int(s.GetFields()[k].GetNumberValue()) }
	return model.DispatchSummary{Sent: n("sent"), Failed: n("failed"), Removed: n("removed"), Skipped: n("skipped")}
}

// --- Tokens ---

// ToStructTokens renders an issued token.
func ToStructTokens(t model.Tokens) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"access_token": structpb.NewStringValue(t.AccessToken),
		"expires_at":   structpb.NewStringValue(t.ExpiresAt.UTC().Format(time.RFC3339)),
	}}
}

// FromStructTokens is the client-side inverse of ToStructTokens.
func FromStructTokens(s *structpb.Struct) (model.Tokens, error) {
	tok := model.Tokens{AccessToken: str(s, "access_token")}
	if tok.AccessToken == "" {
		return model.Tokens{}, errors.New("missing access_token")
	}
	exp, err := time.Parse(time.RFC3339, str(s, "expires_at"))
	if err != nil {
		return model.Tokens{}, fmt.Errorf("expires_at: %w", err)
	}
	tok.ExpiresAt = exp
	return tok, nil
}
