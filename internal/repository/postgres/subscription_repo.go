package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepo implements SubscriptionRepository using PostgreSQL.
type SubscriptionRepo struct{ db *DB }

// NewSubscriptionRepo constructs a subscription repository.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const subscriptionColumns = `id, member_id, endpoint, p256dh, auth, created_at, updated_at`

// Upsert inserts sub or refreshes its keys when the same member resubscribes
// to the same endpoint. The row is never moved to another member.
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub model.PushSubscription) (model.PushSubscription, error) {
	const q = `
INSERT INTO push_subscriptions (id, member_id, endpoint, p256dh, auth)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (endpoint) DO UPDATE
SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = now()
WHERE push_subscriptions.member_id = EXCLUDED.member_id
RETURNING id, created_at, updated_at`
	out := sub
	err := r.db.Pool.QueryRow(ctx, q, sub.ID, sub.MemberID, sub.Endpoint, sub.P256dh, sub.Auth).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// the conflict branch filtered the row out: another member owns the endpoint
		return model.PushSubscription{}, fmt.Errorf("endpoint: %w", errs.ErrAlreadyExists)
	}
	if err != nil {
		return model.PushSubscription{}, err
	}
	return out, nil
}

// DeleteByEndpoint removes the subscription with the given endpoint, if any.
func (r *SubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	const q = `DELETE FROM push_subscriptions WHERE endpoint=$1`
	_, err := r.db.Pool.Exec(ctx, q, endpoint)
	return err
}

// DeleteForMember removes the member's subscription for endpoint.
func (r *SubscriptionRepo) DeleteForMember(ctx context.Context, memberID uuid.UUID, endpoint string) error {
	const q = `DELETE FROM push_subscriptions WHERE member_id=$1 AND endpoint=$2`
	tag, err := r.db.Pool.Exec(ctx, q, memberID, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByMember returns the member's subscriptions ordered by creation time.
func (r *SubscriptionRepo) ListByMember(ctx context.Context, memberID uuid.UUID) ([]model.PushSubscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
FROM push_subscriptions WHERE member_id=$1
ORDER BY created_at ASC`
	return r.list(ctx, q, memberID)
}

// ListAll returns all subscriptions.
func (r *SubscriptionRepo) ListAll(ctx context.Context) ([]model.PushSubscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
FROM push_subscriptions
ORDER BY created_at ASC`
	return r.list(ctx, q)
}

func (r *SubscriptionRepo) list(ctx context.Context, q string, args ...any) ([]model.PushSubscription, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err = rows.Scan(&s.ID, &s.MemberID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
