package grpcserver

import (
	"context"

	"github.com/and161185/goph-push/internal/service"
)

type ctxKey string

const callerKey ctxKey = "gp.caller"

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c service.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the authenticated caller from context.
func CallerFromCtx(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(callerKey).(service.Caller)
	return c, ok
}
