package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/pkg/enums"
)

// Identity is the verified caller. Auth seeds it from the access token.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (i Identity) IsAdmin() bool {
	return i.Role == enums.UserRoleAdmin
}

type identityKey struct{}

// WithIdentity stores id on ctx for downstream handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext reports the caller, if Auth admitted one.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}

// UserIDFromContext returns the caller id as text, or "" for anonymous
// requests. Rate limits and idempotency keys are scoped by it.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID.String()
	}
	return ""
}
