// Package requestctx carries per-request identity through context.Context.
//
// Values set here do not cross goroutines started after the request ends;
// code that outlives the request captures them explicitly.
package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	userKey contextKey = iota
	requestIDKey
)

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, idUser int64) context.Context {
	return context.WithValue(ctx, userKey, idUser)
}

// User returns the authenticated user id, if any.
func User(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey).(int64)
	return id, ok && id > 0
}

// WithRequestID returns a context carrying a request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// NewRequestID returns a fresh random request id.
func NewRequestID() string {
	return uuid.NewString()
}
