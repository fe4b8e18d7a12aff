// Package limiter caps how many targeted notifications a member receives per window.
package limiter

import (
	"context"
	"time"
)

// Limiter counts events per key in fixed windows.
type Limiter interface {
	// Allow records one event for key. When the window is already full it
	// reports false and how long until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow always reports true.
func (Unlimited) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }
