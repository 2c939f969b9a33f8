package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cacheClient      cache.Client
	docDBClient      docdb.Client
	completionClient completion.Client
	completionConfig config.CompletionConfig
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cacheClient cache.Client, docDBClient docdb.Client, completionClient completion.Client, completionConfig config.CompletionConfig) *HealthHandler {
	if completionConfig.HealthCheck <= 0 {
		completionConfig.HealthCheck = 5 * time.Second
	}
	return &HealthHandler{
		cacheClient:      cacheClient,
		docDBClient:      docDBClient,
		completionClient: completionClient,
		completionConfig: completionConfig,
	}
}

// Health handles the /health endpoint.
// @Summary Health check
// @Description Returns the overall health status and component statuses
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse "Service healthy"
// @Failure 503 {object} dto.HealthResponse "Service unhealthy"
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	components := make(map[string]string)
	healthy := true

	if err := h.cacheClient.Ping(c.Request.Context()); err != nil {
		components["cache"] = "unhealthy"
		healthy = false
	} else {
		components["cache"] = "healthy"
	}

	if err := h.docDBClient.Ping(c.Request.Context()); err != nil {
		components["docdb"] = "unhealthy"
		healthy = false
	} else {
		components["docdb"] = "healthy"
	}

	// The oracle being down degrades the service but sessions keep working.
	if err := h.pingCompletion(c.Request.Context()); err != nil {
		components["completion"] = "unhealthy"
	} else {
		components["completion"] = "healthy"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, dto.HealthResponse{
		Status:     status,
		Components: components,
	})
}

// Ready handles the /ready endpoint.
// @Summary Readiness check
// @Description Returns 200 if the service is ready to accept traffic
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service ready"
// @Failure 503 {object} map[string]string "Service not ready"
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.cacheClient.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "cache unavailable",
		})
		return
	}

	if err := h.docDBClient.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "docdb unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Live handles the /live endpoint.
// @Summary Liveness check
// @Description Returns 200 if the service is alive
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service alive"
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// Oracle handles GET /api/oracle/health
// @Summary Oracle health
// @Description Reports whether the completion backend is configured and answering. The API key is never included.
// @Tags Health
// @Produce json
// @Success 200 {object} dto.OracleHealthResponse
// @Failure 500 {object} dto.OracleHealthResponse
// @Router /api/oracle/health [get]
func (h *HealthHandler) Oracle(c *gin.Context) {
	cfg := h.completionConfig
	missing := cfg.MissingVars()
	llm := dto.CompletionStatus{
		Configured:  len(missing) == 0,
		Type:        cfg.Type,
		APIBase:     cfg.APIBase,
		Model:       cfg.Model,
		MissingVars: missing,
	}
	if cfg.Type == "http" {
		llm.APIBase = cfg.URL
	}

	err := h.pingCompletion(c.Request.Context())
	if err != nil {
		logger := middleware.GetRequestLogger(c)
		logger.Warn().Err(err).Msg("oracle health check failed")
		c.JSON(http.StatusInternalServerError, dto.OracleHealthResponse{
			Status:    "error",
			Message:   errorMessage(err),
			LLM:       llm,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	llm.Available = true
	c.JSON(http.StatusOK, dto.OracleHealthResponse{
		Status:    "ok",
		LLM:       llm,
		Timestamp: time.Now().UTC(),
	})
}

func (h *HealthHandler) pingCompletion(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.completionConfig.HealthCheck)
	defer cancel()
	return h.completionClient.Ping(ctx)
}
