package task

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type contextKey int

const (
	identityKey contextKey = iota
	paramsKey
)

// Identity 一次Task执行的身份信息，随context传递
type Identity struct {
	PipelineID string
	RunID      string
	TaskID     string
	TaskName   string
}

// WithIdentity 将身份信息挂到context上（对外导出）
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom 取出身份信息，不存在时返回零值
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// GetRunID 从context中获取运行ID（对外导出）
func GetRunID(ctx context.Context) string { return IdentityFrom(ctx).RunID }

// GetPipelineID 从context中获取Pipeline ID（对外导出）
func GetPipelineID(ctx context.Context) string { return IdentityFrom(ctx).PipelineID }

// GetTaskID 从context中获取Task ID（对外导出）
func GetTaskID(ctx context.Context) string { return IdentityFrom(ctx).TaskID }

// WithTaskParams 将Task参数添加到context中（对外导出）
func WithTaskParams(ctx context.Context, params map[string]any) context.Context {
	return context.WithValue(ctx, paramsKey, params)
}

// GetTaskParams 从context中获取Task参数（对外导出）
func GetTaskParams(ctx context.Context) map[string]any {
	params, _ := ctx.Value(paramsKey).(map[string]any)
	return params
}

// LogFields 身份信息对应的日志字段，空值不输出
func LogFields(ctx context.Context) log.Fields {
	id := IdentityFrom(ctx)
	fields := log.Fields{}
	for k, v := range map[string]string{
		"pipeline_id": id.PipelineID,
		"run_id":      id.RunID,
		"task_id":     id.TaskID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}
