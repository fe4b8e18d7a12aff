// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/goph-push/internal/model"
	"github.com/gofrs/uuid/v5"
)

// SubscriptionRepository stores browser push subscriptions keyed by endpoint.
type SubscriptionRepository interface {
	// Upsert inserts a subscription or replaces the keys of an existing one
	// with the same endpoint and owner. An endpoint owned by another member
	// yields errs.ErrAlreadyExists.
	Upsert(ctx context.Context, sub model.PushSubscription) (model.PushSubscription, error)

	// DeleteByEndpoint removes a subscription regardless of owner.
	// Deleting a missing endpoint is not an error.
	DeleteByEndpoint(ctx context.Context, endpoint string) error

	// DeleteForMember removes a member's own subscription; errs.ErrNotFound if absent.
	DeleteForMember(ctx context.Context, memberID uuid.UUID, endpoint string) error

	// ListByMember returns a member's subscriptions, oldest first.
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]model.PushSubscription, error)

	// ListAll returns every stored subscription.
	ListAll(ctx context.Context) ([]model.PushSubscription, error)
}
