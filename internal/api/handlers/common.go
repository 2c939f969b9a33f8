// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
)

// clientContext returns the request's client context or writes an error.
func clientContext(c *gin.Context) (*clientctx.Context, bool) {
	cc := middleware.GetClientContext(c)
	if cc == nil {
		middleware.HandleError(c, errors.NewInternalError("client context missing", nil))
		return nil, false
	}
	return cc, true
}

// signedIn returns the current session or writes a 401.
func signedIn(c *gin.Context, cc *clientctx.Context) (*models.Session, bool) {
	s := cc.Store.Current()
	if s == nil {
		middleware.HandleError(c, errors.NewUnauthenticatedError("Authentication required"))
		return nil, false
	}
	return s, true
}

// newSessionResponse describes the session state of cc.
func newSessionResponse(cc *clientctx.Context) dto.SessionResponse {
	s := cc.Store.Current()
	st := cc.Monitor.Status()

	resp := dto.SessionResponse{
		Authenticated: s != nil,
		User:          dto.NewUserResponse(s),
		Inactivity:    string(st.Inactivity),
		ExpiryWarning: st.ExpiryWarning,
		LastActivity:  st.LastActivity,
		Notice:        dto.NewNoticeResponse(cc.Notice()),
		PendingReason: string(cc.PendingReason()),
	}
	if s != nil {
		exp := s.ExpiryTime()
		resp.ExpiresAt = &exp
	}
	return resp
}

// logoutMessage is the text the entry screen shows for a sign-out reason.
func logoutMessage(reason models.LogoutReason) string {
	switch reason {
	case models.LogoutReasonTimeout:
		return "You have been logged out due to inactivity."
	case models.LogoutReasonExpired:
		return "Your session has expired. Please sign in again."
	case models.LogoutReasonSignedOut:
		return "You have been successfully signed out."
	default:
		return ""
	}
}

// localPath keeps only same-site absolute paths.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return ""
	}
	return p
}
