package task

import (
	"maps"
	"slices"
	"time"
)

const (
	TaskStatusPending        = "PENDING"
	TaskStatusRunning        = "RUNNING"
	TaskStatusSuccess        = "SUCCESS"
	TaskStatusFailed         = "FAILED"
	TaskStatusTimeout        = "TIMEOUT"
	TaskStatusUpstreamFailed = "UPSTREAM_FAILED"
)

// Task 执行节点的完整配置（对外导出）
// 由各类operator在构图阶段生成，执行阶段由executor按JobFuncName从registry中取出函数，
// 以Params作为关键字参数调用
type Task struct {
	ID             string         `json:"task_id" yaml:"task_id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	JobFuncName    string         `json:"job_func_name" yaml:"job_func_name"`
	Params         map[string]any `json:"params" yaml:"params"`
	ProvideContext bool           `json:"provide_context" yaml:"provide_context"`
	Dependencies   []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	RetryCount     int            `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	Status         string         `json:"status" yaml:"status"`
	CreateTime     time.Time      `json:"create_time" yaml:"-"`
}

// NewTask 创建Task实例（对外导出）
// id同时作为Task名称，可在之后修改Name
func NewTask(id, jobFuncName string, params map[string]any) *Task {
	if params == nil {
		params = make(map[string]any)
	}
	return &Task{
		ID:          id,
		Name:        id,
		JobFuncName: jobFuncName,
		Params:      params,
		Status:      TaskStatusPending,
		CreateTime:  time.Now(),
	}
}

// GetID 返回Task ID
func (t *Task) GetID() string {
	return t.ID
}

// GetName 返回Task名称
func (t *Task) GetName() string {
	return t.Name
}

// GetDependencies 返回依赖Task ID列表的副本
func (t *Task) GetDependencies() []string {
	return slices.Clone(t.Dependencies)
}

// Timeout 返回超时时间，未设置时返回0
func (t *Task) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Clone 深拷贝Task（params只拷贝一层）（对外导出）
func (t *Task) Clone() *Task {
	c := *t
	c.Params = maps.Clone(t.Params)
	if c.Params == nil {
		c.Params = make(map[string]any)
	}
	c.Dependencies = slices.Clone(t.Dependencies)
	return &c
}
