package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/guard"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Guard applies the route rules to the current session. An expired session
// is given one monitor tick first, which refreshes it or signs it out.
func Guard(rules guard.Rules, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		cc := GetClientContext(c)

		var s *models.Session
		if cc != nil {
			s = cc.Store.Current()
			if s != nil && s.IsExpired(now()) {
				cc.Monitor.Tick(c.Request.Context(), now())
				s = cc.Store.Current()
				cc.SyncCookies(c.Writer, c.Request)
			}
		}

		d := rules.Evaluate(c.Request.URL.Path, s)
		switch d.Kind {
		case guard.Redirect:
			location := d.Location
			if cc != nil && strings.HasPrefix(location, rules.LoginPath) {
				if reason := cc.PendingReason(); reason != "" {
					location = withQuery(location, "session", string(reason))
				}
			}
			c.Redirect(http.StatusFound, location)
			c.Abort()
		case guard.Deny:
			c.AbortWithStatusJSON(d.Status, d.Body)
		default:
			c.Next()
		}
	}
}

func withQuery(location, key, value string) string {
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
