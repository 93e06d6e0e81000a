// ABOUTME: Request context carrying the signed-in user through web handlers
// ABOUTME: Provides WithUser/FromContext for propagating identity via context

package auth

import (
	"context"
)

// User is the signed-in user behind a request.
type User struct {
	SessionID   string // browser session id, also the key for per-browser state
	UserID      string // identity provider subject
	Email       string
	DisplayName string
}

// userContextKey is the key type for storing User in context.Context.
type userContextKey struct{}

// WithUser returns a new context with the user attached.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// FromContext retrieves the user from the context, returning nil if not present.
func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}

// MustFromContext retrieves the user from the context, panicking if not present.
func MustFromContext(ctx context.Context) *User {
	u := FromContext(ctx)
	if u == nil {
		panic("auth: User not found in context")
	}
	return u
}
