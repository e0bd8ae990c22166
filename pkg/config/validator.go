package config

import (
	"fmt"
	"slices"
)

// notificationEvents 可绑定通知的事件类型
var notificationEvents = []string{
	"run.started",
	"run.finished",
	"task.started",
	"task.retrying",
	"task.succeeded",
	"task.failed",
}

// ValidateEngineConfig 校验框架配置合法性
func ValidateEngineConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}

	// 校验General
	if cfg.Pipeline.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	if cfg.Pipeline.General.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.Pipeline.General.LogLevel] {
			return fmt.Errorf("log_level必须是debug/info/warn/error之一")
		}
	}

	// 校验Storage.Database
	if !validDBType(cfg.Pipeline.Storage.Database.Type) {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if cfg.Pipeline.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if cfg.Pipeline.Storage.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns必须大于0")
	}
	if cfg.Pipeline.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}

	// 校验Connections
	for id, conn := range cfg.Pipeline.Connections {
		if id == "" {
			return fmt.Errorf("connections中存在空的连接ID")
		}
		if !validDBType(conn.Type) {
			return fmt.Errorf("connections.%s.type必须是sqlite/postgres/mysql之一", id)
		}
		if conn.DSN == "" {
			return fmt.Errorf("connections.%s.dsn不能为空", id)
		}
	}

	// 校验Notifications
	for i, n := range cfg.Pipeline.Notifications {
		if n.Plugin == "" {
			return fmt.Errorf("notifications[%d].plugin不能为空", i)
		}
		if len(n.Events) == 0 {
			return fmt.Errorf("notifications[%d].events不能为空", i)
		}
		for _, ev := range n.Events {
			if !slices.Contains(notificationEvents, ev) {
				return fmt.Errorf("notifications[%d].events包含未知事件 %q", i, ev)
			}
		}
	}

	// 校验Execution
	if cfg.Pipeline.Execution.WorkerConcurrency <= 0 {
		return fmt.Errorf("execution.worker_concurrency必须大于0")
	}
	if cfg.Pipeline.Execution.DefaultTaskTimeout <= 0 {
		return fmt.Errorf("execution.default_task_timeout必须大于0")
	}

	// 校验Retry
	if cfg.Pipeline.Execution.Retry.Enabled {
		if cfg.Pipeline.Execution.Retry.MaxAttempts < 0 {
			return fmt.Errorf("execution.retry.max_attempts不能为负数")
		}
		if cfg.Pipeline.Execution.Retry.Delay < 0 {
			return fmt.Errorf("execution.retry.delay不能为负数")
		}
		if cfg.Pipeline.Execution.Retry.MaxDelay < 0 {
			return fmt.Errorf("execution.retry.max_delay不能为负数")
		}
		if cfg.Pipeline.Execution.Retry.MaxDelay > 0 &&
			cfg.Pipeline.Execution.Retry.Delay > cfg.Pipeline.Execution.Retry.MaxDelay {
			return fmt.Errorf("execution.retry.delay不能大于max_delay")
		}
	}

	return nil
}

// ValidatePipelineConfig 校验业务配置合法性
// 只做结构校验；schema_name/table_name等缺失由operator在构图时报告
func ValidatePipelineConfig(cfg *PipelineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}

	pipelineIDMap := make(map[string]bool)
	for i, p := range cfg.Pipelines {
		if p.PipelineID == "" {
			return fmt.Errorf("pipelines[%d].pipeline_id不能为空", i)
		}
		if pipelineIDMap[p.PipelineID] {
			return fmt.Errorf("pipelines中存在重复的pipeline_id: %s", p.PipelineID)
		}
		pipelineIDMap[p.PipelineID] = true

		for j, t := range p.Tasks {
			if t.Operator == "" {
				return fmt.Errorf("pipelines[%d].tasks[%d].operator不能为空", i, j)
			}
			if t.TimeoutSeconds < 0 {
				return fmt.Errorf("pipelines[%d].tasks[%d].timeout_seconds不能为负数", i, j)
			}
			if t.RetryCount < 0 {
				return fmt.Errorf("pipelines[%d].tasks[%d].retry_count不能为负数", i, j)
			}
			// 校验依赖关系（不能依赖自己）
			for k, dep := range t.Dependencies {
				if t.TaskID != nil && dep == *t.TaskID {
					return fmt.Errorf("pipelines[%d].tasks[%d].dependencies[%d] 不能依赖自己", i, j, k)
				}
			}
		}
	}

	return nil
}

func validDBType(dbType string) bool {
	switch dbType {
	case "sqlite", "postgres", "postgresql", "mysql":
		return true
	default:
		return false
	}
}
