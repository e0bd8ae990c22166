package config

import (
	"time"
)

// ConnectionConfig 外部数据库连接配置（对外导出）
// 任务中的 postgres_conn_id 引用这里的key
type ConnectionConfig struct {
	Type string `yaml:"type"` // postgres/sqlite/mysql
	DSN  string `yaml:"dsn"`
}

// NotificationConfig 运行通知配置（对外导出）
// 把Plugin绑定到若干事件类型上，Pipelines为空表示对全部Pipeline生效
type NotificationConfig struct {
	Plugin    string            `yaml:"plugin"` // email/log
	Events    []string          `yaml:"events"` // 如 run.finished、task.failed
	Pipelines []string          `yaml:"pipelines"`
	Params    map[string]string `yaml:"params"`
}

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	Pipeline struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			// Database 运行历史的存储库
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Connections map[string]ConnectionConfig `yaml:"connections"`
		Execution   struct {
			DefaultTaskTimeout time.Duration `yaml:"default_task_timeout"`
			WorkerConcurrency  int           `yaml:"worker_concurrency"`
			Retry              struct {
				Enabled     bool          `yaml:"enabled"`
				MaxAttempts int           `yaml:"max_attempts"`
				Delay       time.Duration `yaml:"delay"`
				MaxDelay    time.Duration `yaml:"max_delay"`
			} `yaml:"retry"`
		} `yaml:"execution"`
		SQLCache struct {
			Enabled bool          `yaml:"enabled"`
			TTL     time.Duration `yaml:"ttl"`
		} `yaml:"sql_cache"`
		API struct {
			ListenAddr string `yaml:"listen_addr"`
		} `yaml:"api"`
		Notifications []NotificationConfig `yaml:"notifications"`
	} `yaml:"ctas-pipeline"`
}

// GetDatabaseType 获取运行历史库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.Pipeline.Storage.Database.Type
}

// GetDatabaseDSN 获取运行历史库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.Pipeline.Storage.Database.DSN
}

// GetWorkerConcurrency 获取同层Task最大并发数
func (c *EngineConfig) GetWorkerConcurrency() int {
	concurrency := c.Pipeline.Execution.WorkerConcurrency
	if concurrency <= 0 {
		return 4 // 默认值
	}
	return concurrency
}

// GetDefaultTaskTimeout 获取默认任务超时时间
func (c *EngineConfig) GetDefaultTaskTimeout() time.Duration {
	timeout := c.Pipeline.Execution.DefaultTaskTimeout
	if timeout <= 0 {
		return 30 * time.Minute // 默认值
	}
	return timeout
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.Pipeline.General.InstanceName == "" {
		c.Pipeline.General.InstanceName = "ctas-pipeline"
	}
	if c.Pipeline.General.LogLevel == "" {
		c.Pipeline.General.LogLevel = "info"
	}
	if c.Pipeline.General.Env == "" {
		c.Pipeline.General.Env = "dev"
	}

	// Database默认值
	if c.Pipeline.Storage.Database.Type == "" {
		c.Pipeline.Storage.Database.Type = "sqlite"
	}
	if c.Pipeline.Storage.Database.DSN == "" && c.Pipeline.Storage.Database.Type == "sqlite" {
		c.Pipeline.Storage.Database.DSN = "./ctas_pipeline.db"
	}
	if c.Pipeline.Storage.Database.MaxOpenConns <= 0 {
		c.Pipeline.Storage.Database.MaxOpenConns = 10
	}
	if c.Pipeline.Storage.Database.MaxIdleConns <= 0 {
		c.Pipeline.Storage.Database.MaxIdleConns = 5
	}
	if c.Pipeline.Storage.Database.ConnMaxLifetime <= 0 {
		c.Pipeline.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}

	// Execution默认值
	if c.Pipeline.Execution.DefaultTaskTimeout <= 0 {
		c.Pipeline.Execution.DefaultTaskTimeout = 30 * time.Minute
	}
	if c.Pipeline.Execution.WorkerConcurrency <= 0 {
		c.Pipeline.Execution.WorkerConcurrency = 4
	}

	// Retry默认值
	if c.Pipeline.Execution.Retry.MaxAttempts <= 0 {
		c.Pipeline.Execution.Retry.MaxAttempts = 3
	}
	if c.Pipeline.Execution.Retry.Delay <= 0 {
		c.Pipeline.Execution.Retry.Delay = 1 * time.Second
	}
	if c.Pipeline.Execution.Retry.MaxDelay <= 0 {
		c.Pipeline.Execution.Retry.MaxDelay = 30 * time.Second
	}

	// SQL文件缓存默认值
	if c.Pipeline.SQLCache.TTL <= 0 {
		c.Pipeline.SQLCache.TTL = 5 * time.Minute
	}

	if c.Pipeline.API.ListenAddr == "" {
		c.Pipeline.API.ListenAddr = ":8080"
	}
}
