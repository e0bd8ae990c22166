package plugin

import (
	"context"

	"github.com/LENAX/ctas-pipeline/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// LogPlugin 把通知写入日志，失败类通知使用Warn级别
type LogPlugin struct {
	prefix string
}

// NewLogPlugin 创建日志插件
func NewLogPlugin() Plugin {
	return &LogPlugin{}
}

// Name 插件名称
func (l *LogPlugin) Name() string { return "log" }

// Init 可选参数 prefix
func (l *LogPlugin) Init(params map[string]string) error {
	l.prefix = params["prefix"]
	if l.prefix == "" {
		l.prefix = "[通知]"
	}
	return nil
}

// Execute 输出一条日志
func (l *LogPlugin) Execute(_ context.Context, n Notification) error {
	entry := log.WithFields(log.Fields{
		"event":       n.Event,
		"run_id":      n.RunID,
		"pipeline_id": n.PipelineID,
		"status":      n.Status,
	})
	if n.TaskID != "" {
		entry = entry.WithField("task_id", n.TaskID)
	}
	if n.Error != "" || n.Status == storage.RunStatusFailed {
		entry.WithField("error", n.Error).Warn(l.prefix + " " + subject(n))
		return nil
	}
	entry.Info(l.prefix + " " + subject(n))
	return nil
}
