package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

type contextKey string

const (
	tokenKey     contextKey = "bearerToken"
	sessionIDKey contextKey = "sessionId"
)

// ErrMissingToken is returned when no bearer token is on the context
var ErrMissingToken = errors.New("bearer token is required")

// Context identifies the console session a request belongs to.
type Context struct {
	// Token is the caller's bearer token, forwarded upstream as-is.
	Token string `json:"-"`

	// SessionID keys the cached finance page. When the console sends no
	// explicit id it is derived from the token.
	SessionID string `json:"sessionId"`
}

// IDFromToken derives a stable session id from a bearer token without
// keeping the token itself as a cache key.
func IDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "tok-" + hex.EncodeToString(sum[:12])
}

// ToContext stores sc on ctx
func ToContext(ctx context.Context, sc *Context) context.Context {
	ctx = context.WithValue(ctx, tokenKey, sc.Token)
	return context.WithValue(ctx, sessionIDKey, sc.SessionID)
}

// FromContext reads the session context, failing when the token is absent
func FromContext(ctx context.Context) (*Context, error) {
	sc := &Context{}
	if v, ok := ctx.Value(tokenKey).(string); ok {
		sc.Token = v
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		sc.SessionID = v
	}
	if sc.Token == "" {
		return nil, ErrMissingToken
	}
	return sc, nil
}

// TokenFromContext returns the bearer token or ""
func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey).(string)
	return v
}

// IDFromContext returns the session id or ""
func IDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}
