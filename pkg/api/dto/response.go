package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// PipelineSummary Pipeline摘要信息
type PipelineSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	TaskCount   int    `json:"task_count"`
	Schedule    string `json:"schedule,omitempty"`
	NextRun     string `json:"next_run,omitempty"`
}

// PipelineDetail Pipeline详细信息
type PipelineDetail struct {
	PipelineSummary
	DefaultArgs  map[string]any      `json:"default_args,omitempty"`
	Tasks        []TaskSummary       `json:"tasks"`
	Dependencies map[string][]string `json:"dependencies"`
	Levels       [][]string          `json:"levels"`
}

// TaskSummary Task摘要信息
type TaskSummary struct {
	ID             string         `json:"id"`
	Description    string         `json:"description"`
	Callable       string         `json:"callable"`
	ProvideContext bool           `json:"provide_context"`
	Params         map[string]any `json:"params"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	Timeout        int            `json:"timeout,omitempty"`
	RetryCount     int            `json:"retry_count,omitempty"`
}

// RunSummary 运行记录摘要
type RunSummary struct {
	RunID        string     `json:"run_id"`
	PipelineID   string     `json:"pipeline_id"`
	Trigger      string     `json:"trigger"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// TaskRunDetail Task运行详细信息
type TaskRunDetail struct {
	TaskID       string     `json:"task_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	Result       string     `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// TriggerResponse 触发运行的响应
type TriggerResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}
