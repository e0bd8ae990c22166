package handler

import (
	"errors"
	"net/http"

	"github.com/LENAX/ctas-pipeline/pkg/api/dto"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/gin-gonic/gin"
)

// RunHandler 运行历史API处理器
type RunHandler struct {
	engine *engine.Engine
}

// NewRunHandler 创建运行历史处理器
func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// ListByPipeline 查询Pipeline最近的运行记录
// GET /api/v1/pipelines/:id/runs?limit=20
func (h *RunHandler) ListByPipeline(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.engine.GetPipeline(id); err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
		return
	}

	var query dto.RunsQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "invalid query: "+err.Error()))
		return
	}

	runs, err := h.engine.RunRepository().ListRuns(c.Request.Context(), id, query.GetDefaultLimit())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	items := make([]dto.RunSummary, 0, len(runs))
	for _, r := range runs {
		items = append(items, toRunSummary(r))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 查询单次运行
// GET /api/v1/runs/:run_id
func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.getRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toRunSummary(run)))
}

// ListTasks 查询单次运行中各Task的执行记录
// GET /api/v1/runs/:run_id/tasks
func (h *RunHandler) ListTasks(c *gin.Context) {
	run, ok := h.getRun(c)
	if !ok {
		return
	}
	taskRuns, err := h.engine.RunRepository().ListTaskRuns(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}
	items := make([]dto.TaskRunDetail, 0, len(taskRuns))
	for _, tr := range taskRuns {
		items = append(items, dto.TaskRunDetail{
			TaskID:       tr.TaskID,
			Status:       tr.Status,
			Attempts:     tr.Attempts,
			StartedAt:    tr.StartTime,
			FinishedAt:   tr.EndTime,
			Duration:     elapsed(tr.StartTime, tr.EndTime),
			Result:       tr.Result,
			ErrorMessage: tr.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.TaskRunDetail]{
		Total: len(items),
		Items: items,
	}))
}

func (h *RunHandler) getRun(c *gin.Context) (*storage.PipelineRun, bool) {
	run, err := h.engine.RunRepository().GetRun(c.Request.Context(), c.Param("run_id"))
	if errors.Is(err, storage.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "run not found"))
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return nil, false
	}
	return run, true
}

func toRunSummary(r *storage.PipelineRun) dto.RunSummary {
	return dto.RunSummary{
		RunID:        r.ID,
		PipelineID:   r.PipelineID,
		Trigger:      r.Trigger,
		Status:       r.Status,
		StartedAt:    r.StartTime,
		FinishedAt:   r.EndTime,
		Duration:     elapsed(r.StartTime, r.EndTime),
		ErrorMessage: r.ErrorMessage,
	}
}
