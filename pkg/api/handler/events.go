package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/api/dto"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const eventWriteTimeout = 5 * time.Second

// EventHandler 运行事件推送（WebSocket）
type EventHandler struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// NewEventHandler 创建事件推送处理器
func NewEventHandler(eng *engine.Engine) *EventHandler {
	return &EventHandler{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// StreamRun 推送一次运行的事件，run.finished后关闭连接
// GET /api/v1/runs/:run_id/events
//
// 运行已结束时按运行历史回放Task结果和run.finished。
func (h *EventHandler) StreamRun(c *gin.Context) {
	runID := c.Param("run_id")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先订阅再查运行状态，避免两者之间结束的运行丢失run.finished
	events, err := h.engine.EventBus().SubscribeAll(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, err.Error()))
		return
	}

	run, err := h.lookupRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade失败时已写回HTTP错误
		log.WithError(err).WithField("run_id", runID).Warn("[事件推送] WebSocket升级失败")
		return
	}
	defer conn.Close()
	logger := log.WithField("run_id", runID)

	if run != nil && run.Status != storage.RunStatusRunning {
		if err := h.replay(ctx, conn, run); err != nil {
			logger.WithError(err).Warn("[事件推送] 回放运行历史失败")
		}
		closeNormally(conn)
		return
	}

	// 客户端断开时结束推送
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				closeNormally(conn)
				return
			}
			if ev.RunID != runID {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.WithError(err).Debug("[事件推送] 写入失败，连接已断开")
				return
			}
			if ev.Type == executor.EventRunFinished {
				closeNormally(conn)
				return
			}
		}
	}
}

// lookupRun 运行已记录时返回记录；尚未落库但仍在进行时返回nil
func (h *EventHandler) lookupRun(ctx context.Context, runID string) (*storage.PipelineRun, error) {
	repo := h.engine.RunRepository()
	run, err := repo.GetRun(ctx, runID)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, storage.ErrRunNotFound) {
		return nil, err
	}
	if h.engine.RunInFlight(runID) {
		return nil, nil
	}
	// 查询与登记检查之间运行可能已结束
	return repo.GetRun(ctx, runID)
}

// replay 把已结束运行的Task记录转成事件发送
func (h *EventHandler) replay(ctx context.Context, conn *websocket.Conn, run *storage.PipelineRun) error {
	taskRuns, err := h.engine.RunRepository().ListTaskRuns(ctx, run.ID)
	if err != nil {
		return err
	}
	for _, tr := range taskRuns {
		eventType := executor.EventTaskFailed
		if tr.Status == task.TaskStatusSuccess {
			eventType = executor.EventTaskSucceeded
		}
		ev := executor.NewEvent(eventType, run.ID, run.PipelineID, tr.TaskID)
		ev.Status = tr.Status
		ev.Attempt = tr.Attempts
		ev.Error = tr.ErrorMessage
		if tr.EndTime != nil {
			ev.Timestamp = *tr.EndTime
		}
		if err := writeEvent(conn, ev); err != nil {
			return err
		}
	}

	finished := executor.NewEvent(executor.EventRunFinished, run.ID, run.PipelineID, "")
	finished.Status = run.Status
	finished.Error = run.ErrorMessage
	if run.EndTime != nil {
		finished.Timestamp = *run.EndTime
	}
	return writeEvent(conn, finished)
}

func writeEvent(conn *websocket.Conn, ev *executor.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	return conn.WriteJSON(ev)
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
