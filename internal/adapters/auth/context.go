package auth

import (
	"context"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

type ctxKey struct{}

// WithUser stores the verified user id in ctx.
func WithUser(ctx context.Context, user domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// UserFromContext returns the verified user id, if any.
func UserFromContext(ctx context.Context) (domain.UserID, bool) {
	u, ok := ctx.Value(ctxKey{}).(domain.UserID)
	return u, ok && u != ""
}
