package service

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/repository"
	"github.com/and161185/goph-push/internal/webpush"
	"github.com/gofrs/uuid/v5"
)

type fakeSubs struct {
	mu         sync.Mutex
	byEndpoint map[string]model.PushSubscription

	deleteErr error
	listErr   error
	listCalls int
	deleted   []string
}

var _ repository.SubscriptionRepository = (*fakeSubs)(nil)

func newFakeSubs(subs ...model.PushSubscription) *fakeSubs {
	f := &fakeSubs{byEndpoint: map[string]model.PushSubscription{}}
	for _, s := range subs {
		f.byEndpoint[s.Endpoint] = s
	}
	return f
}

func (f *fakeSubs) Upsert(_ context.Context, sub model.PushSubscription) (model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if cur, ok := f.byEndpoint[sub.Endpoint]; ok {
		if cur.MemberID != sub.MemberID {
			return model.PushSubscription{}, errs.ErrAlreadyExists
		}
		cur.P256dh, cur.Auth, cur.UpdatedAt = sub.P256dh, sub.Auth, now
		f.byEndpoint[sub.Endpoint] = cur
		return cur, nil
	}
	sub.CreatedAt, sub.UpdatedAt = now, now
	f.byEndpoint[sub.Endpoint] = sub
	return sub, nil
}

func (f *fakeSubs) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.byEndpoint, endpoint)
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func (f *fakeSubs) DeleteForMember(_ context.Context, memberID uuid.UUID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byEndpoint[endpoint]
	if !ok || cur.MemberID != memberID {
		return errs.ErrNotFound
	}
	delete(f.byEndpoint, endpoint)
	return nil
}

func (f *fakeSubs) ListByMember(_ context.Context, memberID uuid.UUID) ([]model.PushSubscription, error) {
	all, err := f.ListAll(context.Background())
	if err != nil {
		return nil, err
	}
	var out []model.PushSubscription
	for _, s := range all {
		if s.MemberID == memberID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) ListAll(context.Context) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.PushSubscription, 0, len(f.byEndpoint))
	for _, s := range f.byEndpoint {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (f *fakeSubs) has(endpoint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byEndpoint[endpoint]
	return ok
}

type fakeLimiter struct {
	allow bool
	retry time.Duration
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.retry, l.err
}

type deliverFunc func(ctx context.Context, sub model.PushSubscription, body []byte, authHeader string) model.DeliveryResult

func (f deliverFunc) Deliver(ctx context.Context, sub model.PushSubscription, body []byte, authHeader string) model.DeliveryResult {
	return f(ctx, sub, body, authHeader)
}

// subscriber is a browser-side key pair behind a subscription.
type subscriber struct {
	sub  model.PushSubscription
	priv *ecdh.PrivateKey
	auth []byte
}

func newSubscriber(t *testing.T, member uuid.UUID, endpoint string) subscriber {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("subscriber key: %v", err)
	}
	auth := make([]byte, webpush.AuthSecretLen)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("auth: %v", err)
	}
	return subscriber{
		sub: model.PushSubscription{
			ID:       uuid.Must(uuid.NewV4()),
			MemberID: member,
			Endpoint: endpoint,
			P256dh:   webpush.EncodeKey(priv.PublicKey().Bytes()),
			Auth:     webpush.EncodeKey(auth),
		},
		priv: priv,
		auth: auth,
	}
}

func vapidKeys(t *testing.T) model.VapidKeyPair {
	t.Helper()
	kp, err := webpush.GenerateVapidKeyPair()
	if err != nil {
		t.Fatalf("GenerateVapidKeyPair: %v", err)
	}
	return kp
}
