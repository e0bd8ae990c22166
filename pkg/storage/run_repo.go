package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("run not found")

const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// PipelineRun 一次Pipeline运行记录（对外导出）
type PipelineRun struct {
	ID           string     `json:"run_id"`
	PipelineID   string     `json:"pipeline_id"`
	Trigger      string     `json:"trigger"` // manual/cron/api
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// TaskRun 单个Task在一次运行中的记录（对外导出）
type TaskRun struct {
	ID           string     `json:"id"`
	RunID        string     `json:"run_id"`
	PipelineID   string     `json:"pipeline_id"`
	TaskID       string     `json:"task_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Result       string     `json:"result,omitempty"` // JSON格式
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunRepository 运行历史存储接口（对外导出）
type RunRepository interface {
	// SaveRun 保存Pipeline运行记录（创建或更新）
	SaveRun(ctx context.Context, run *PipelineRun) error
	// GetRun 根据ID查询运行记录，不存在返回ErrRunNotFound
	GetRun(ctx context.Context, runID string) (*PipelineRun, error)
	// ListRuns 查询Pipeline最近的运行记录（按开始时间倒序），limit<=0表示不限制
	ListRuns(ctx context.Context, pipelineID string, limit int) ([]*PipelineRun, error)
	// SaveTaskRun 保存Task运行记录（创建或更新）
	SaveTaskRun(ctx context.Context, tr *TaskRun) error
	// ListTaskRuns 查询一次运行中的全部Task记录（按开始时间排序）
	ListTaskRuns(ctx context.Context, runID string) ([]*TaskRun, error)
	// Close 关闭底层连接
	Close() error
}
