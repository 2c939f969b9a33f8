package middleware

import (
	"github.com/gin-gonic/gin"

	domainerrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
)

// LoginRateLimit throttles sign-in attempts per client context.
func LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		cc := GetClientContext(c)
		if cc != nil && !cc.AllowLogin() {
			logger := GetRequestLogger(c)
			logger.Warn().Msg("sign-in attempt throttled")
			c.Header("Retry-After", "60")
			HandleError(c, domainerrors.NewTooManyRequestsError("too many sign-in attempts, try again shortly"))
			return
		}
		c.Next()
	}
}
