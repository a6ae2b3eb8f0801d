package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/session"
)

// HeaderSessionID lets one console tab keep its own finance session
const HeaderSessionID = "X-Session-ID"

// ContextKeySession is the gin key holding the *session.Context
const ContextKeySession = "financeSession"

// maxSessionIDLength bounds the client-supplied part of a session key
const maxSessionIDLength = 64

// SessionAuth requires a bearer token and puts the session context on the
// request. Session keys are always derived from the token so one caller
// can never address another caller's session.
func SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithAppError(c, errors.ErrUnauthorized("bearer token is required").Wrap(session.ErrMissingToken))
			return
		}

		sessionID := session.IDFromToken(token)
		if tab := strings.TrimSpace(c.GetHeader(HeaderSessionID)); tab != "" {
			if len(tab) > maxSessionIDLength {
				AbortWithAppError(c, errors.ErrValidation("session id is too long").
					WithDetail(HeaderSessionID, "must be at most 64 characters"))
				return
			}
			sessionID += "/" + tab
		}

		sc := &session.Context{Token: token, SessionID: sessionID}
		ctx := session.ToContext(c.Request.Context(), sc)
		ctx = logging.ContextWithSessionID(ctx, sessionID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextKeySession, sc)

		c.Next()
	}
}

// GetSession returns the session context set by SessionAuth, or nil
func GetSession(c *gin.Context) *session.Context {
	if val, exists := c.Get(ContextKeySession); exists {
		if sc, ok := val.(*session.Context); ok {
			return sc
		}
	}
	return nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
