package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	domainerrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// SessionIDHeader lets non-browser clients name their client context.
const SessionIDHeader = "X-Session-ID"

const clientContextKey = "client_context"

// ClientContextMiddleware binds each request to its client context.
type ClientContextMiddleware struct {
	registry *clientctx.Registry
	cookies  session.CookiePolicy
}

// NewClientContextMiddleware creates a new ClientContextMiddleware.
func NewClientContextMiddleware(registry *clientctx.Registry, cookies session.CookiePolicy) *ClientContextMiddleware {
	return &ClientContextMiddleware{
		registry: registry,
		cookies:  cookies,
	}
}

// Resolve finds or creates the client context, restores a persisted session
// into it and brings the auth cookies up to date.
func (m *ClientContextMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromCookie := session.GetContextID(c.Request)
		id := fromCookie
		if id == "" {
			id = c.GetHeader(SessionIDHeader)
		}

		cc, _, err := m.registry.Resolve(id)
		if err != nil {
			HandleError(c, domainerrors.NewServiceUnavailableError("client context", err))
			return
		}
		if fromCookie != cc.ID {
			m.cookies.SetContextID(c.Writer, cc.ID)
		}
		c.Header(SessionIDHeader, cc.ID)
		c.Set(clientContextKey, cc)
		withLogFields(c, func(l zerolog.Context) zerolog.Context { return l.Str("sid", cc.ID) })

		if s := cc.Restore(c.Request.Context(), c.Request); s != nil {
			withLogFields(c, func(l zerolog.Context) zerolog.Context { return l.Str("user_id", s.User.ID) })
		}
		cc.SyncCookies(c.Writer, c.Request)

		c.Next()
	}
}

// GetClientContext returns the request's client context, or nil outside
// the Resolve middleware.
func GetClientContext(c *gin.Context) *clientctx.Context {
	if v, ok := c.Get(clientContextKey); ok {
		return v.(*clientctx.Context)
	}
	return nil
}
