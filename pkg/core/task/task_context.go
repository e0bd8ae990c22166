package task

import (
	"context"
	"fmt"
	"maps"
)

// TaskContext Task执行上下文，提供类型安全的API访问Task信息（对外导出）
type TaskContext struct {
	ctx        context.Context // 底层context，用于超时、取消等
	TaskID     string          // Task ID
	TaskName   string          // Task名称
	PipelineID string          // Pipeline ID
	RunID      string          // 本次运行ID
	Params     map[string]any  // 关键字参数
	// Runtime 运行时上下文（run_id、ds等），仅在Task.ProvideContext为true时填充
	Runtime map[string]any
}

// NewTaskContext 创建TaskContext（对外导出）
// params会被浅拷贝，函数内部修改不会影响Task定义
func NewTaskContext(ctx context.Context, t *Task, pipelineID, runID string) *TaskContext {
	ctx = WithIdentity(ctx, Identity{
		PipelineID: pipelineID,
		RunID:      runID,
		TaskID:     t.ID,
		TaskName:   t.Name,
	})
	params := maps.Clone(t.Params)
	if params == nil {
		params = make(map[string]any)
	}
	ctx = WithTaskParams(ctx, params)
	return &TaskContext{
		ctx:        ctx,
		TaskID:     t.ID,
		TaskName:   t.Name,
		PipelineID: pipelineID,
		RunID:      runID,
		Params:     params,
	}
}

// Context 返回底层context.Context（对外导出）
func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

// WithContext 返回替换了底层context的副本（对外导出）
// executor用它为每次尝试挂载独立的超时
func (tc *TaskContext) WithContext(ctx context.Context) *TaskContext {
	c := *tc
	c.ctx = ctx
	return &c
}

// GetParam 获取参数值，不存在返回nil（对外导出）
func (tc *TaskContext) GetParam(key string) any {
	if tc.Params == nil {
		return nil
	}
	return tc.Params[key]
}

// HasParam 检查参数是否存在（对外导出）
func (tc *TaskContext) HasParam(key string) bool {
	if tc.Params == nil {
		return false
	}
	_, exists := tc.Params[key]
	return exists
}

// GetParamString 获取字符串参数（对外导出）
func (tc *TaskContext) GetParamString(key string) string {
	val := tc.GetParam(key)
	if val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}

// RequireString 获取必需的非空字符串参数（对外导出）
func (tc *TaskContext) RequireString(key string) (string, error) {
	val := tc.GetParam(key)
	if val == nil {
		return "", fmt.Errorf("%w: 参数 %s 不存在", ErrInvalidConfig, key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: 参数 %s 类型不是字符串，当前类型: %T", ErrInvalidConfig, key, val)
	}
	if str == "" {
		return "", fmt.Errorf("%w: 参数 %s 不能为空", ErrInvalidConfig, key)
	}
	return str, nil
}

// GetParamBool 获取布尔参数（对外导出）
func (tc *TaskContext) GetParamBool(key string) (bool, error) {
	val := tc.GetParam(key)
	if val == nil {
		return false, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true" || v == "1" || v == "yes", nil
	default:
		return false, fmt.Errorf("参数 %s 类型不是布尔值，当前类型: %T", key, val)
	}
}

// HasRuntime 是否携带运行时上下文（对外导出）
func (tc *TaskContext) HasRuntime() bool {
	return tc.Runtime != nil
}

// RuntimeValue 读取运行时上下文中的值（对外导出）
func (tc *TaskContext) RuntimeValue(key string) (any, bool) {
	if tc.Runtime == nil {
		return nil, false
	}
	v, ok := tc.Runtime[key]
	return v, ok
}

// Done 返回一个channel，当context被取消时该channel会被关闭（对外导出）
func (tc *TaskContext) Done() <-chan struct{} {
	return tc.ctx.Done()
}

// Err 返回context的错误（对外导出）
func (tc *TaskContext) Err() error {
	return tc.ctx.Err()
}
