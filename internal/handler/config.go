package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
)

type ConfigProvider interface {
	Get() runtimeconfig.RuntimeConfig
}

// HealthChecker probes the REST backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

type ConfigHandler struct {
	provider ConfigProvider
	checker  HealthChecker
}

func NewConfigHandler(provider ConfigProvider, checker HealthChecker) *ConfigHandler {
	return &ConfigHandler{
		provider: provider,
		checker:  checker,
	}
}

// RuntimeConfig handles GET /api/runtime-config.
func (h *ConfigHandler) RuntimeConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.provider.Get())
}

func (h *ConfigHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	})
}

// UpstreamHealth handles GET /api/health/upstream.
func (h *ConfigHandler) UpstreamHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	up := h.checker.HealthCheck(ctx)
	resp := model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
		Upstream:  &up,
	}
	if !up {
		resp.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
