package auth

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session *Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// IdentityFromContext returns the authenticated identity, or "" when the
// context carries no session.
func IdentityFromContext(ctx context.Context) string {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return ""
	}
	return session.Identity
}

// RequireRole returns ErrTokenInvalid when ctx has no session and a
// forbidden error when the session's role is below minRole.
func RequireRole(ctx context.Context, minRole UserRole) error {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return ErrTokenInvalid
	}
	if !session.IsAtLeast(minRole) {
		return ErrForbidden
	}
	return nil
}
