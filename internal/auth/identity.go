package auth

import (
	"context"

	"github.com/google/uuid"
)

// AuthMethod names how a request authenticated.
type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodToken   AuthMethod = "token"
)

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	UserID uuid.UUID
	Role   string
	Method AuthMethod
	// SessionID is set only for cookie-authenticated requests.
	SessionID uuid.UUID
}

type identityKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the request identity, or nil for anonymous contexts.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
