package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
)

// SessionHandler exposes the lifecycle state of the client context.
type SessionHandler struct {
	now func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(now func() time.Time) *SessionHandler {
	if now == nil {
		now = time.Now
	}
	return &SessionHandler{now: now}
}

// Get handles GET /api/session
// @Summary Session status
// @Description Returns the session, pending warnings and the last sign-out reason
// @Tags Session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Router /api/session [get]
func (h *SessionHandler) Get(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(cc))
}

// Activity handles POST /api/session/activity
// @Summary Record activity
// @Description Registers user activity and clears the inactivity warning
// @Tags Session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/session/activity [post]
func (h *SessionHandler) Activity(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	if _, ok := signedIn(c, cc); !ok {
		return
	}

	if err := cc.Monitor.RecordActivity(c.Request.Context(), h.now()); err != nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("activity store", err))
		return
	}
	cc.SyncCookies(c.Writer, c.Request)
	c.JSON(http.StatusOK, newSessionResponse(cc))
}

// Continue handles POST /api/session/continue
// @Summary Stay signed in
// @Description Dismisses the inactivity warning
// @Tags Session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/session/continue [post]
func (h *SessionHandler) Continue(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	if _, ok := signedIn(c, cc); !ok {
		return
	}

	if err := cc.Monitor.Continue(c.Request.Context(), h.now()); err != nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("activity store", err))
		return
	}
	cc.SyncCookies(c.Writer, c.Request)
	c.JSON(http.StatusOK, newSessionResponse(cc))
}

// Extend handles POST /api/session/extend
// @Summary Extend the session
// @Description Refreshes the access token in answer to the expiry warning
// @Tags Session
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/session/extend [post]
func (h *SessionHandler) Extend(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	if _, ok := signedIn(c, cc); !ok {
		return
	}

	_, err := cc.Monitor.Extend(c.Request.Context(), h.now())
	cc.SyncCookies(c.Writer, c.Request)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(cc))
}
