package contextutil

import "context"

type userKey struct{}

// WithUserID returns a context carrying the authenticated user identifier.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the user identifier from the context, or ""
// when none was set.
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userKey{}).(string); ok {
		return userID
	}
	return ""
}
