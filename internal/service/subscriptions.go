package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/repository"
	"github.com/and161185/goph-push/internal/webpush"
	"github.com/gofrs/uuid/v5"
)

// SubscriptionService manages a member's push subscriptions.
type SubscriptionService interface {
	// Subscribe validates and stores a subscription; resubscribing to the
	// same endpoint replaces its keys.
	Subscribe(ctx context.Context, memberID uuid.UUID, endpoint, p256dh, auth string) (model.PushSubscription, error)
	// Unsubscribe removes the member's subscription for endpoint.
	Unsubscribe(ctx context.Context, memberID uuid.UUID, endpoint string) error
	// List returns the member's subscriptions.
	List(ctx context.Context, memberID uuid.UUID) ([]model.PushSubscription, error)
}

type SubscriptionServiceImpl struct {
	repo repository.SubscriptionRepository
}

// NewSubscriptionService constructs SubscriptionService.
func NewSubscriptionService(repo repository.SubscriptionRepository) *SubscriptionServiceImpl {
	return &SubscriptionServiceImpl{repo: repo}
}

// Subscribe rejects records that could never be delivered to, so the store
// only holds keys of the right shape.
func (s *SubscriptionServiceImpl) Subscribe(
	ctx context.Context, memberID uuid.UUID, endpoint, p256dh, auth string,
) (model.PushSubscription, error) {
	if memberID == uuid.Nil {
		return model.PushSubscription{}, fmt.Errorf("%w: member id", errs.ErrValidation)
	}
	sub := model.PushSubscription{
		MemberID: memberID,
		Endpoint: strings.TrimSpace(endpoint),
		P256dh:   strings.TrimSpace(p256dh),
		Auth:     strings.TrimSpace(auth),
	}
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return model.PushSubscription{}, fmt.Errorf("%w: endpoint/p256dh/auth required", errs.ErrValidation)
	}
	if _, _, err := webpush.SubscriberKeys(sub); err != nil {
		return model.PushSubscription{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.PushSubscription{}, err
	}
	sub.ID = id
	return s.repo.Upsert(ctx, sub)
}

// Unsubscribe deletes only the caller's own record.
func (s *SubscriptionServiceImpl) Unsubscribe(ctx context.Context, memberID uuid.UUID, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if memberID == uuid.Nil || endpoint == "" {
		return fmt.Errorf("%w: member id/endpoint", errs.ErrValidation)
	}
	return s.repo.DeleteForMember(ctx, memberID, endpoint)
}

// List returns the member's subscriptions.
func (s *SubscriptionServiceImpl) List(ctx context.Context, memberID uuid.UUID) ([]model.PushSubscription, error) {
	if memberID == uuid.Nil {
		return nil, fmt.Errorf("%w: member id", errs.ErrValidation)
	}
	return s.repo.ListByMember(ctx, memberID)
}
