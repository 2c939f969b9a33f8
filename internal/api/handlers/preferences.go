package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// PreferencesHandler reads and writes the preference cookie.
type PreferencesHandler struct {
	cookies session.CookiePolicy
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(cookies session.CookiePolicy) *PreferencesHandler {
	return &PreferencesHandler{cookies: cookies}
}

// Get handles GET /api/preferences
// @Summary Get preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} models.Preferences
// @Router /api/preferences [get]
func (h *PreferencesHandler) Get(c *gin.Context) {
	prefs, _ := session.GetPreferences(c.Request)
	c.JSON(http.StatusOK, prefs)
}

// Put handles PUT /api/preferences
// @Summary Replace preferences
// @Tags Preferences
// @Accept json
// @Produce json
// @Param request body dto.PreferencesRequest true "Preferences"
// @Success 200 {object} models.Preferences
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/preferences [put]
func (h *PreferencesHandler) Put(c *gin.Context) {
	var req dto.PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	prefs := models.Preferences{
		Theme:      req.Theme,
		RememberMe: req.RememberMe,
		Language:   req.Language,
	}
	if err := h.cookies.SetPreferences(c.Writer, prefs); err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to store preferences", err))
		return
	}
	c.JSON(http.StatusOK, prefs)
}
