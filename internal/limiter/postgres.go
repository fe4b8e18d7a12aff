package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// PG is a PostgreSQL-backed fixed window counter.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	limit  int
	now    func() time.Time
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a limiter that lets limit events per key through each window.
// It accepts *pgxpool.Pool or any other pool exposing QueryRow.
func NewPG(q pgxQuerier, window time.Duration, limit int) *PG {
	return &PG{pool: q, window: window, limit: limit, now: time.Now}
}

// Allow increments the counter for key, starting a new window when the
// previous one has expired.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const q = `
INSERT INTO notify_limiter (key, hits, window_start)
VALUES ($1, 1, now())
ON CONFLICT (key) DO UPDATE
SET
  hits = CASE WHEN now() - notify_limiter.window_start > $2::interval THEN 1 ELSE notify_limiter.hits + 1 END,
  window_start = CASE WHEN now() - notify_limiter.window_start > $2::interval THEN now() ELSE notify_limiter.window_start END
RETURNING hits, window_start`
	var (
		hits  int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, key, l.window).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits > l.limit {
		retry := start.Add(l.window).Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}
	return true, 0, nil
}
