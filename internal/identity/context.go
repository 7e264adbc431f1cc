package identity

import (
	"context"

	"accounting/internal/core"
)

type ctxKey struct{}

// WithUser returns a context carrying the signed-in user.
func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the signed-in user, or nil.
func UserFrom(ctx context.Context) *core.User {
	u, _ := ctx.Value(ctxKey{}).(*core.User)
	return u
}
