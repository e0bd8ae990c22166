package plugin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
)

// Plugin 通知插件接口（对外导出）
type Plugin interface {
	// Name 插件名称
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Execute 处理一条通知
	Execute(ctx context.Context, n Notification) error
}

// Notification 传递给插件的数据（对外导出）
type Notification struct {
	Event      executor.EventType `json:"event"`
	RunID      string             `json:"run_id"`
	PipelineID string             `json:"pipeline_id"`
	TaskID     string             `json:"task_id,omitempty"`
	Status     string             `json:"status,omitempty"`
	Attempt    int                `json:"attempt,omitempty"`
	Error      string             `json:"error,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// FromEvent 由运行事件构造通知
func FromEvent(ev *executor.Event) Notification {
	return Notification{
		Event:      ev.Type,
		RunID:      ev.RunID,
		PipelineID: ev.PipelineID,
		TaskID:     ev.TaskID,
		Status:     ev.Status,
		Attempt:    ev.Attempt,
		Error:      ev.Error,
		Timestamp:  ev.Timestamp,
	}
}

// Factory 创建未初始化的插件实例
type Factory func() Plugin

var builtins = map[string]Factory{
	"email": NewEmailPlugin,
	"log":   NewLogPlugin,
}

// New 按名称创建内置插件（对外导出）
func New(name string) (Plugin, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("未知插件 %q（可选: %v）", name, Builtins())
	}
	return f(), nil
}

// Builtins 内置插件名称（排序后）
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
