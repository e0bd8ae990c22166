package api

import (
	"github.com/LENAX/ctas-pipeline/internal/metrics"
	"github.com/LENAX/ctas-pipeline/pkg/api/handler"
	"github.com/LENAX/ctas-pipeline/pkg/api/middleware"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(metrics.Handler())

	pipelineHandler := handler.NewPipelineHandler(eng)
	runHandler := handler.NewRunHandler(eng)
	healthHandler := handler.NewHealthHandler(eng, version)
	eventHandler := handler.NewEventHandler(eng)

	// 不带前缀
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", metrics.Exposer())

	v1 := router.Group("/api/v1")
	{
		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("", pipelineHandler.List)
			pipelines.GET("/:id", pipelineHandler.Get)
			pipelines.POST("/:id/runs", pipelineHandler.Trigger)
			pipelines.GET("/:id/runs", runHandler.ListByPipeline)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("/:run_id", runHandler.Get)
			runs.GET("/:run_id/tasks", runHandler.ListTasks)
			runs.GET("/:run_id/events", eventHandler.StreamRun)
		}
	}

	return router
}
