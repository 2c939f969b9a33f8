package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/services/history"
)

// InteractionsHandler serves the signed-in user's history.
type InteractionsHandler struct{}

// NewInteractionsHandler creates a new InteractionsHandler.
func NewInteractionsHandler() *InteractionsHandler {
	return &InteractionsHandler{}
}

// List handles GET /api/interactions
// @Summary List past questions
// @Description Returns the user's interactions, newest first
// @Tags Interactions
// @Produce json
// @Param search query string false "Case-insensitive match on the question"
// @Param favorites query bool false "Only favorites"
// @Success 200 {object} dto.InteractionsResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/interactions [get]
func (h *InteractionsHandler) List(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	s, ok := signedIn(c, cc)
	if !ok {
		return
	}

	var q dto.ListInteractionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	items, err := cc.History.List(c.Request.Context(), s.User.ID, history.Filter{
		Search:        q.Search,
		FavoritesOnly: q.Favorites,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.InteractionsResponse{
		Interactions: make([]dto.InteractionResponse, 0, len(items)),
		Total:        len(items),
	}
	for _, it := range items {
		resp.Interactions = append(resp.Interactions, dto.NewInteractionResponse(it))
	}
	c.JSON(http.StatusOK, resp)
}

// SetFavorite handles PATCH /api/interactions/:id/favorite
// @Summary Mark or unmark a favorite
// @Tags Interactions
// @Accept json
// @Param id path string true "Interaction ID"
// @Param request body dto.FavoriteRequest true "Favorite flag"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/interactions/{id}/favorite [patch]
func (h *InteractionsHandler) SetFavorite(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	s, ok := signedIn(c, cc)
	if !ok {
		return
	}

	var req dto.FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := cc.History.SetFavorite(c.Request.Context(), s.User.ID, c.Param("id"), *req.Favorite); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/interactions/:id
// @Summary Delete a past question
// @Tags Interactions
// @Param id path string true "Interaction ID"
// @Success 204
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/interactions/{id} [delete]
func (h *InteractionsHandler) Delete(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	s, ok := signedIn(c, cc)
	if !ok {
		return
	}

	if err := cc.History.Delete(c.Request.Context(), s.User.ID, c.Param("id")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
