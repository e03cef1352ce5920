package common

import "context"

type ctxKey string

const sessionKey ctxKey = "session/user-id"

// Session identifies the authenticated seller for the lifetime of a request.
// It is initialised by the auth middleware on login-token validation and torn
// down implicitly when the request context ends; handlers never reach for any
// other ambient user state.
type Session struct {
	UserID string
}

// WithSession stores the session on the provided context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom extracts the session from the context if present.
func SessionFrom(ctx context.Context) (Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	s, ok := SessionFrom(ctx)
	if !ok || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}
