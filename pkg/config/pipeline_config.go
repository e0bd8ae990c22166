package config

// PipelineConfig 业务配置：Pipeline及其Task定义（对外导出）
type PipelineConfig struct {
	Pipelines []PipelineDefinition `yaml:"pipelines"`
}

// PipelineDefinition Pipeline定义
type PipelineDefinition struct {
	PipelineID  string           `yaml:"pipeline_id"`
	Description string           `yaml:"description"`
	Schedule    string           `yaml:"schedule"` // cron表达式（秒级），为空表示只手动触发
	DefaultArgs map[string]any   `yaml:"default_args"`
	Tasks       []TaskDefinition `yaml:"tasks"`
}

// TaskDefinition Task定义
// 指针字段缺省时为nil，由operator回退到default_args或推导值
type TaskDefinition struct {
	Operator       string         `yaml:"operator"`
	SchemaName     string         `yaml:"schema_name"`
	TableName      string         `yaml:"table_name"`
	TaskID         *string        `yaml:"task_id"`
	PostgresConnID *string        `yaml:"postgres_conn_id"`
	SQLDirectory   *string        `yaml:"sql_directory"`
	ProvideContext *bool          `yaml:"provide_context"`
	OpKwargs       map[string]any `yaml:"op_kwargs"`
	Description    string         `yaml:"description"`
	Dependencies   []string       `yaml:"dependencies"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	RetryCount     int            `yaml:"retry_count"`
}

// GetPipelineByID 根据PipelineID获取Pipeline定义
func (c *PipelineConfig) GetPipelineByID(pipelineID string) *PipelineDefinition {
	for i := range c.Pipelines {
		if c.Pipelines[i].PipelineID == pipelineID {
			return &c.Pipelines[i]
		}
	}
	return nil
}
