// Package service contains application services for push subscriptions and
// notification fan-out.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/limiter"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/repository"
	"github.com/and161185/goph-push/internal/webpush"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent deliveries within one batch.
const DefaultWorkers = 16

// Deliverer performs a single push POST. *webpush.Client implements it.
type Deliverer interface {
	Deliver(ctx context.Context, sub model.PushSubscription, body []byte, authHeader string) model.DeliveryResult
}

// DispatchService sends notifications to stored subscriptions.
type DispatchService interface {
	// SendToAll delivers payload to every subscription in subs using kp.
	SendToAll(ctx context.Context, subs []model.PushSubscription, payload model.NotificationPayload, kp model.VapidKeyPair) (model.DispatchSummary, error)
	// Broadcast delivers payload to every stored subscription.
	Broadcast(ctx context.Context, payload model.NotificationPayload) (model.DispatchSummary, error)
	// NotifyMember delivers payload to one member's subscriptions.
	NotifyMember(ctx context.Context, memberID uuid.UUID, payload model.NotificationPayload) (model.DispatchSummary, error)
}

// Dispatcher fans a payload out to subscriptions through a bounded worker pool.
type Dispatcher struct {
	subs    repository.SubscriptionRepository
	signer  *webpush.Signer
	client  Deliverer
	lim     limiter.Limiter
	keys    model.VapidKeyPair
	workers int
	log     *zap.Logger
}

// NewDispatcher wires a dispatcher. keys are used by Broadcast and NotifyMember;
// workers <= 0 means DefaultWorkers; a nil lim never throttles.
func NewDispatcher(
	subs repository.SubscriptionRepository,
	signer *webpush.Signer,
	client Deliverer,
	lim limiter.Limiter,
	keys model.VapidKeyPair,
	workers int,
	log *zap.Logger,
) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if lim == nil {
		lim = limiter.Unlimited{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{subs: subs, signer: signer, client: client, lim: lim, keys: keys, workers: workers, log: log}
}

// slot is the per-subscription result; the zero value means not attempted.
type slot uint8

const (
	slotSkipped slot = iota
	slotSent
	slotFailed
	slotRemoved
)

// SendToAll encrypts and delivers payload to each subscription independently.
//
// Bad keys or an unusable payload fail the whole call before any request is
// made. After that, no single subscription can abort the batch: malformed
// records and transient push service errors count as failed, 404/410 responses
// remove the record and count as removed. Once ctx is done no new deliveries
// start; those already in flight finish on their own timeout.
func (d *Dispatcher) SendToAll(
	ctx context.Context, subs []model.PushSubscription, payload model.NotificationPayload, kp model.VapidKeyPair,
) (model.DispatchSummary, error) {
	if err := precheck(payload, kp); err != nil {
		return model.DispatchSummary{}, err
	}
	return d.fanOut(ctx, subs, payload, kp), nil
}

// Broadcast sends payload to all stored subscriptions.
func (d *Dispatcher) Broadcast(ctx context.Context, payload model.NotificationPayload) (model.DispatchSummary, error) {
	if err := precheck(payload, d.keys); err != nil {
		return model.DispatchSummary{}, err
	}
	subs, err := d.subs.ListAll(ctx)
	if err != nil {
		return model.DispatchSummary{}, fmt.Errorf("list subscriptions: %w", err)
	}
	return d.fanOut(ctx, subs, payload, d.keys), nil
}

// NotifyMember sends payload to the member's subscriptions, subject to the
// per-member limiter.
func (d *Dispatcher) NotifyMember(ctx context.Context, memberID uuid.UUID, payload model.NotificationPayload) (model.DispatchSummary, error) {
	if memberID == uuid.Nil {
		return model.DispatchSummary{}, fmt.Errorf("%w: member id", errs.ErrValidation)
	}
	if err := precheck(payload, d.keys); err != nil {
		return model.DispatchSummary{}, err
	}
	ok, retry, err := d.lim.Allow(ctx, memberID.String())
	if err != nil {
		return model.DispatchSummary{}, fmt.Errorf("limiter: %w", err)
	}
	if !ok {
		return model.DispatchSummary{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}
	subs, err := d.subs.ListByMember(ctx, memberID)
	if err != nil {
		return model.DispatchSummary{}, fmt.Errorf("list subscriptions: %w", err)
	}
	return d.fanOut(ctx, subs, payload, d.keys), nil
}

// precheck rejects batches that would fail identically for every subscription.
func precheck(payload model.NotificationPayload, kp model.VapidKeyPair) error {
	if err := webpush.ValidateVapidKeyPair(kp); err != nil {
		return err
	}
	if len(payload) > webpush.MaxPlaintextLen {
		return fmt.Errorf("%w: %d bytes, max %d", errs.ErrPayloadTooLarge, len(payload), webpush.MaxPlaintextLen)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: payload must be a JSON document", errs.ErrValidation)
	}
	return nil
}

func (d *Dispatcher) fanOut(
	ctx context.Context, subs []model.PushSubscription, payload model.NotificationPayload, kp model.VapidKeyPair,
) model.DispatchSummary {
	results := make([]slot, len(subs))
	// deliveries are not cancelled with the batch
	deliverCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, sub := range subs {
		i, sub := i, sub
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = d.sendOne(deliverCtx, sub, payload, kp)
			return nil
		})
	}
	_ = g.Wait()

	var sum model.DispatchSummary
	for _, r := range results {
		switch r {
		case slotSent:
			sum.Sent++
		case slotFailed:
			sum.Failed++
		case slotRemoved:
			sum.Removed++
		default:
			sum.Skipped++
		}
	}
	d.log.Info("dispatch batch",
		zap.Int("subscriptions", len(subs)),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Int("removed", sum.Removed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum
}

func (d *Dispatcher) sendOne(
	ctx context.Context, sub model.PushSubscription, payload model.NotificationPayload, kp model.VapidKeyPair,
) slot {
	// log the audience only: the endpoint path identifies the subscriber
	aud, _ := webpush.Audience(sub.Endpoint)
	log := d.log.With(zap.String("aud", aud), zap.Stringer("subscription", sub.ID))

	pub, auth, err := webpush.SubscriberKeys(sub)
	if err != nil {
		log.Warn("skip malformed subscription", zap.Error(err))
		return slotFailed
	}
	header, err := d.signer.AuthHeader(sub.Endpoint, kp)
	if err != nil {
		log.Error("vapid signing failed", zap.Error(err))
		return slotFailed
	}
	body, err := webpush.Encrypt(pub, auth, payload)
	if err != nil {
		log.Error("encryption failed", zap.Error(err))
		return slotFailed
	}

	res := d.client.Deliver(ctx, sub, body, header)
	switch res.Outcome {
	case model.OutcomeDelivered:
		return slotSent
	case model.OutcomeGone:
		if err := d.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			log.Error("remove stale subscription", zap.Int("status", res.StatusCode), zap.Error(err))
			return slotFailed
		}
		log.Info("removed stale subscription", zap.Int("status", res.StatusCode))
		return slotRemoved
	default:
		log.Warn("delivery failed", zap.Int("status", res.StatusCode), zap.Error(res.Err))
		return slotFailed
	}
}
