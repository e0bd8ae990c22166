package handler

import (
	"errors"
	"net/http"

	"github.com/LENAX/ctas-pipeline/pkg/api/dto"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// PipelineHandler Pipeline相关API处理器
type PipelineHandler struct {
	engine *engine.Engine
}

// NewPipelineHandler 创建Pipeline处理器
func NewPipelineHandler(eng *engine.Engine) *PipelineHandler {
	return &PipelineHandler{engine: eng}
}

// List 列出已加载的Pipeline
// GET /api/v1/pipelines
func (h *PipelineHandler) List(c *gin.Context) {
	pipelines := h.engine.Pipelines()
	items := make([]dto.PipelineSummary, 0, len(pipelines))
	for _, p := range pipelines {
		items = append(items, h.summary(p))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.PipelineSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Pipeline详情，包含Task列表与执行层级
// GET /api/v1/pipelines/:id
func (h *PipelineHandler) Get(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	d, err := p.BuildDAG()
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	order, err := d.TopologicalSort()
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	tasks := make([]dto.TaskSummary, 0, p.Len())
	for _, t := range p.Tasks() {
		tasks = append(tasks, dto.TaskSummary{
			ID:             t.ID,
			Description:    t.Description,
			Callable:       t.JobFuncName,
			ProvideContext: t.ProvideContext,
			Params:         t.Params,
			Dependencies:   t.GetDependencies(),
			Timeout:        t.TimeoutSeconds,
			RetryCount:     t.RetryCount,
		})
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PipelineDetail{
		PipelineSummary: h.summary(p),
		DefaultArgs:     p.DefaultArgs,
		Tasks:           tasks,
		Dependencies:    p.Dependencies(),
		Levels:          order.Levels,
	}))
}

// Trigger 触发一次运行
// POST /api/v1/pipelines/:id/runs
// 默认异步执行并返回202；请求体 {"wait": true} 时同步等待结果
func (h *PipelineHandler) Trigger(c *gin.Context) {
	id := c.Param("id")

	var req dto.TriggerRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "invalid request body: "+err.Error()))
			return
		}
	}

	if !req.Wait {
		runID, err := h.engine.TriggerAsync(id, executor.TriggerAPI)
		if err != nil {
			h.writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.TriggerResponse{
			RunID:   runID,
			Message: "run accepted",
		}))
		return
	}

	res, err := h.engine.Trigger(c.Request.Context(), id, executor.TriggerAPI)
	if res == nil && err != nil {
		h.writeEngineError(c, err)
		return
	}
	if err != nil {
		log.WithError(err).WithField("pipeline_id", id).Warn("[API] 同步运行未成功")
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.TriggerResponse{
		RunID:   res.RunID,
		Status:  res.Status,
		Message: "run finished",
	}))
}

func (h *PipelineHandler) lookup(c *gin.Context) (*workflow.Pipeline, bool) {
	p, err := h.engine.GetPipeline(c.Param("id"))
	if err != nil {
		h.writeEngineError(c, err)
		return nil, false
	}
	return p, true
}

func (h *PipelineHandler) summary(p *workflow.Pipeline) dto.PipelineSummary {
	s := dto.PipelineSummary{
		ID:          p.ID,
		Description: p.Description,
		TaskCount:   p.Len(),
		Schedule:    p.Schedule,
	}
	if next, ok := h.engine.Scheduler().NextRun(p.ID); ok {
		s.NextRun = next
	}
	return s
}

func (h *PipelineHandler) writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrPipelineNotFound):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
	case errors.Is(err, engine.ErrEngineStopped):
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
	}
}
