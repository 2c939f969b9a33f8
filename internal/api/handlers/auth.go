package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// AuthHandler handles sign-in, sign-up and password endpoints.
type AuthHandler struct {
	cookies session.CookiePolicy
	now     func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cookies session.CookiePolicy, now func() time.Time) *AuthHandler {
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{
		cookies: cookies,
		now:     now,
	}
}

// Login handles POST /api/auth/login
// @Summary Sign in
// @Description Signs in with email and password and sets the session cookies
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Credentials"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse "Email not confirmed"
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	s, err := cc.Identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	logger := middleware.GetRequestLogger(c)
	logger.Info().Str("user_id", s.User.ID).Msg("user signed in")

	h.startSession(c, cc)

	prefs, _ := session.GetPreferences(c.Request)
	prefs.RememberMe = req.RememberMe
	if err := h.cookies.SetPreferences(c.Writer, prefs); err != nil {
		logger.Warn().Err(err).Msg("failed to store preferences")
	}

	c.JSON(http.StatusOK, newSessionResponse(cc))
}

// Signup handles POST /api/auth/signup
// @Summary Register
// @Description Creates an account. The user confirms the email address before signing in.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.SignupRequest true "Credentials"
// @Success 201 {object} dto.MessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Already registered"
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := cc.Identity.SignUp(c.Request.Context(), req.Email, req.Password); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.MessageResponse{
		Message: "Check your email for the confirmation link.",
	})
}

// Logout handles POST /api/auth/logout
// @Summary Sign out
// @Description Revokes the session and clears the session cookies
// @Tags Auth
// @Produce json
// @Success 200 {object} dto.MessageResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	cc.SignOut(c.Request.Context())
	cc.SyncCookies(c.Writer, c.Request)

	c.JSON(http.StatusOK, dto.MessageResponse{
		Message: logoutMessage(cc.PendingReason()),
	})
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh the session
// @Description Exchanges the refresh token for a new session
// @Tags Auth
// @Produce json
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	if _, err := cc.Identity.Refresh(c.Request.Context()); err != nil {
		cc.SyncCookies(c.Writer, c.Request)
		middleware.HandleError(c, err)
		return
	}
	cc.SyncCookies(c.Writer, c.Request)

	c.JSON(http.StatusOK, newSessionResponse(cc))
}

// ResetPassword handles POST /api/auth/reset-password
// @Summary Request a password reset
// @Description Sends a password reset link to the given address
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Email"
// @Success 200 {object} dto.MessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := cc.Identity.ResetPassword(c.Request.Context(), req.Email); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{
		Message: "Check your email for the password reset link.",
	})
}

// UpdatePassword handles POST /api/auth/update-password
// @Summary Change the password
// @Description Sets a new password for the signed-in user
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.UpdatePasswordRequest true "New password"
// @Success 200 {object} dto.MessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/auth/update-password [post]
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	var req dto.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := cc.Identity.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{
		Message: "Your password has been updated.",
	})
}

// Callback handles GET /auth/callback
// @Summary Email link callback
// @Description Exchanges an email confirmation or recovery token for a session and redirects
// @Tags Auth
// @Param token_hash query string true "Token hash from the email link"
// @Param type query string true "Link type"
// @Param next query string false "Path to continue to"
// @Success 302
// @Router /auth/callback [get]
func (h *AuthHandler) Callback(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	var q dto.CallbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Redirect(http.StatusFound, "/login?"+url.Values{"error": {"invalid_link"}}.Encode())
		return
	}

	if _, err := cc.Identity.VerifyEmail(c.Request.Context(), q.TokenHash, q.Type); err != nil {
		logger := middleware.GetRequestLogger(c)
		logger.Warn().Err(err).Str("type", q.Type).Msg("email link rejected")
		c.Redirect(http.StatusFound, "/login?"+url.Values{"error": {"verification_failed"}}.Encode())
		return
	}
	h.startSession(c, cc)

	next := localPath(q.Next)
	if next == "" {
		next = "/"
		if q.Type == "recovery" {
			next = "/profile"
		}
	}
	c.Redirect(http.StatusFound, next)
}

// startSession runs after any call that signed the user in.
func (h *AuthHandler) startSession(c *gin.Context, cc *clientctx.Context) {
	cc.ClearPendingReason()
	if err := cc.Monitor.RecordActivity(c.Request.Context(), h.now()); err != nil {
		logger := middleware.GetRequestLogger(c)
		logger.Warn().Err(err).Msg("failed to record activity")
	}
	cc.SyncCookies(c.Writer, c.Request)
}
