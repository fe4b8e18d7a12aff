package webpush

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/and161185/goph-push/internal/model"
)

// newSubscription plays the browser: it creates a subscriber key pair and
// auth secret and returns the subscription record plus the private half.
func newSubscription(t *testing.T, endpoint string) (model.PushSubscription, *ecdh.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("subscriber key: %v", err)
	}
	auth := make([]byte, AuthSecretLen)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("auth secret: %v", err)
	}
	sub := model.PushSubscription{
		Endpoint: endpoint,
		P256dh:   EncodeKey(priv.PublicKey().Bytes()),
		Auth:     EncodeKey(auth),
	}
	return sub, priv, auth
}
