package handler

import (
	"net/http"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/api/dto"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	engine    *engine.Engine
	version   string
	startTime time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(eng *engine.Engine, version string) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		version:   version,
		startTime: time.Now(),
	}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    formatDuration(time.Since(h.startTime)),
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}

// Ready 就绪检查，引擎未加载任何Pipeline时返回503
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.engine == nil || len(h.engine.PipelineIDs()) == 0 {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "no pipelines loaded"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"status": "ready",
	}))
}
