// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (an endpoint owned by another member).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller lacks the required privilege.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidVapidKeys indicates a missing or malformed VAPID key pair.
	// It is a configuration error: no delivery may be attempted with such keys.
	ErrInvalidVapidKeys = errors.New("invalid vapid keys")

	// ErrInvalidSubscription indicates a subscription record whose keys or endpoint are malformed.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrRateLimited indicates the target received too many notifications in the current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrPayloadTooLarge indicates a plaintext that does not fit a single aes128gcm record.
	ErrPayloadTooLarge = errors.New("payload too large")
)
