package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// Screen names returned by the page descriptors.
const (
	ScreenOracle  = "oracle"
	ScreenAuth    = "auth"
	ScreenLogin   = "login"
	ScreenSignup  = "signup"
	ScreenProfile = "profile"
)

// PagesHandler tells the frontend which screen to render. Access control is
// left to the route guard.
type PagesHandler struct{}

// NewPagesHandler creates a new PagesHandler.
func NewPagesHandler() *PagesHandler {
	return &PagesHandler{}
}

// Home handles GET /
// @Summary Home screen
// @Description The oracle when signed in, otherwise the sign-in form with the last sign-out reason
// @Tags Pages
// @Produce json
// @Success 200 {object} dto.PageResponse
// @Router / [get]
func (h *PagesHandler) Home(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	if s := cc.Store.Current(); s != nil {
		c.JSON(http.StatusOK, dto.PageResponse{Screen: ScreenOracle, User: dto.NewUserResponse(s)})
		return
	}
	c.JSON(http.StatusOK, entryPage(c, cc, ScreenAuth))
}

// Login handles GET /login
// @Summary Sign-in screen
// @Tags Pages
// @Produce json
// @Param redirectTo query string false "Path to return to after signing in"
// @Success 200 {object} dto.PageResponse
// @Success 302 "Already signed in"
// @Router /login [get]
func (h *PagesHandler) Login(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entryPage(c, cc, ScreenLogin))
}

// Signup handles GET /signup
// @Summary Registration screen
// @Tags Pages
// @Produce json
// @Success 200 {object} dto.PageResponse
// @Success 302 "Already signed in"
// @Router /signup [get]
func (h *PagesHandler) Signup(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PageResponse{Screen: ScreenSignup})
}

// Profile handles GET /profile
// @Summary Profile screen
// @Tags Pages
// @Produce json
// @Success 200 {object} dto.PageResponse
// @Success 302 "Not signed in"
// @Router /profile [get]
func (h *PagesHandler) Profile(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	s, ok := signedIn(c, cc)
	if !ok {
		return
	}

	resp := dto.PageResponse{Screen: ScreenProfile, User: dto.NewUserResponse(s)}
	if prefs, ok := session.GetPreferences(c.Request); ok {
		resp.Preferences = &prefs
	}
	c.JSON(http.StatusOK, resp)
}

// entryPage describes a signed-out screen. The pending sign-out reason is
// shown once.
func entryPage(c *gin.Context, cc *clientctx.Context, screen string) dto.PageResponse {
	resp := dto.PageResponse{
		Screen:     screen,
		RedirectTo: localPath(c.Query("redirectTo")),
	}
	if reason := cc.TakePendingReason(); reason != "" {
		resp.LogoutReason = string(reason)
		resp.LogoutMessage = logoutMessage(reason)
	}
	return resp
}
