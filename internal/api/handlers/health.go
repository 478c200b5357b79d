// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/livechat-service/internal/api/dto"
	"github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/core/cache"
	"github.com/unifiedui/livechat-service/internal/core/docdb"
)

// SessionCounter reports how many sessions are held in memory.
type SessionCounter interface {
	Len() int
}

// TurnCounter reports how many sessions have a reply queued or running.
type TurnCounter interface {
	Pending() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cacheClient   cache.Client
	docDBClient   docdb.Client
	businessStore business.Store
	sessions      SessionCounter
	turns         TurnCounter
}

// NewHealthHandler creates a new HealthHandler. Every dependency is optional.
func NewHealthHandler(cacheClient cache.Client, docDBClient docdb.Client, businessStore business.Store, sessions SessionCounter, turns TurnCounter) *HealthHandler {
	return &HealthHandler{
		cacheClient:   cacheClient,
		docDBClient:   docDBClient,
		businessStore: businessStore,
		sessions:      sessions,
		turns:         turns,
	}
}

type pinger func(ctx context.Context) error

func (h *HealthHandler) checks() map[string]pinger {
	checks := map[string]pinger{}
	if h.cacheClient != nil {
		checks["cache"] = h.cacheClient.Ping
	}
	if h.docDBClient != nil {
		checks["docdb"] = h.docDBClient.Ping
	}
	if h.businessStore != nil {
		checks["business_store"] = h.businessStore.Ping
	}
	return checks
}

// Health handles the /health endpoint.
// @Summary Health check
// @Description Returns the overall health status and component statuses
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse "Service healthy"
// @Failure 503 {object} dto.HealthResponse "Service unhealthy"
// @Router /api/v1/chat/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	components := make(map[string]string)
	healthy := true

	for name, ping := range h.checks() {
		if err := ping(c.Request.Context()); err != nil {
			components[name] = "unhealthy"
			healthy = false
		} else {
			components[name] = "healthy"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	resp := dto.HealthResponse{
		Status:     status,
		Components: components,
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}
	if h.turns != nil {
		resp.ActiveTurns = h.turns.Pending()
	}
	c.JSON(statusCode, resp)
}

// Ready handles the /ready endpoint.
// @Summary Readiness check
// @Description Returns 200 if the service is ready to accept traffic
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service ready"
// @Failure 503 {object} map[string]string "Service not ready"
// @Router /api/v1/chat/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	for name, ping := range h.checks() {
		if err := ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": name + " unavailable",
			})
			return
		}
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
// @Router /api/v1/chat/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
