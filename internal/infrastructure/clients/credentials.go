package clients

import (
	"context"

	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/session"
)

// CredentialsProvider supplies the bearer token for an upstream call
type CredentialsProvider interface {
	Token(ctx context.Context) (string, error)
}

// RequestCredentials forwards the token the session middleware put on the
// request context.
type RequestCredentials struct{}

// Token implements CredentialsProvider
func (RequestCredentials) Token(ctx context.Context) (string, error) {
	token := session.TokenFromContext(ctx)
	if token == "" {
		return "", apperrors.ErrUnauthorized("no bearer token on request").Wrap(session.ErrMissingToken)
	}
	return token, nil
}

// StaticCredentials always returns the same token. Used by tools and tests.
type StaticCredentials string

// Token implements CredentialsProvider
func (s StaticCredentials) Token(context.Context) (string, error) {
	return string(s), nil
}
