package domain

import "context"

type ctxKey string

const (
	userCtxKey    ctxKey = "user"
	requestCtxKey ctxKey = "request_id"
)

// ContextWithUser returns a new context carrying the authenticated user.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// UserFromContext extracts the authenticated user, nil if not set.
func UserFromContext(ctx context.Context) *User {
	if v, ok := ctx.Value(userCtxKey).(*User); ok {
		return v
	}
	return nil
}

// ContextWithRequestID returns a new context carrying the request ID (ULID).
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey, id)
}

// RequestIDFromContext extracts the request ID.
// Returns empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey).(string); ok {
		return v
	}
	return ""
}
