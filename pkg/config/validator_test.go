package config

import (
	"testing"
	"time"
)

func TestValidateEngineConfig(t *testing.T) {
	valid := func() *EngineConfig {
		cfg := &EngineConfig{}
		cfg.Pipeline.General.InstanceName = "test"
		cfg.Pipeline.General.LogLevel = "info"
		cfg.Pipeline.Storage.Database.Type = "sqlite"
		cfg.Pipeline.Storage.Database.DSN = "./test.db"
		cfg.Pipeline.Storage.Database.MaxOpenConns = 10
		cfg.Pipeline.Execution.DefaultTaskTimeout = 30 * time.Second
		cfg.Pipeline.Execution.WorkerConcurrency = 2
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *EngineConfig
		wantErr bool
	}{
		{
			name:    "有效配置",
			cfg:     valid(),
			wantErr: false,
		},
		{
			name:    "空配置",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "无效的数据库类型",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Storage.Database.Type = "invalid"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "无效的日志级别",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.General.LogLevel = "trace"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "连接缺少DSN",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Connections = map[string]ConnectionConfig{"warehouse": {Type: "postgres"}}
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "通知事件未知",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Notifications = []NotificationConfig{{Plugin: "log", Events: []string{"workflow.done"}}}
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "通知缺少事件",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Notifications = []NotificationConfig{{Plugin: "log"}}
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "有效的通知配置",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Notifications = []NotificationConfig{{Plugin: "log", Events: []string{"run.finished", "task.failed"}}}
				return cfg
			}(),
			wantErr: false,
		},
		{
			name: "重试延迟大于最大延迟",
			cfg: func() *EngineConfig {
				cfg := valid()
				cfg.Pipeline.Execution.Retry.Enabled = true
				cfg.Pipeline.Execution.Retry.Delay = 10 * time.Second
				cfg.Pipeline.Execution.Retry.MaxDelay = time.Second
				return cfg
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEngineConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEngineConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	self := "t1"
	tests := []struct {
		name    string
		cfg     *PipelineConfig
		wantErr bool
	}{
		{
			name: "有效配置",
			cfg: &PipelineConfig{Pipelines: []PipelineDefinition{{
				PipelineID: "p1",
				Tasks:      []TaskDefinition{{Operator: "create_table_from_select", SchemaName: "s", TableName: "t"}},
			}}},
			wantErr: false,
		},
		{
			name:    "空配置",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "缺少pipeline_id",
			cfg:     &PipelineConfig{Pipelines: []PipelineDefinition{{}}},
			wantErr: true,
		},
		{
			name:    "重复的pipeline_id",
			cfg:     &PipelineConfig{Pipelines: []PipelineDefinition{{PipelineID: "p1"}, {PipelineID: "p1"}}},
			wantErr: true,
		},
		{
			name: "缺少operator",
			cfg: &PipelineConfig{Pipelines: []PipelineDefinition{{
				PipelineID: "p1",
				Tasks:      []TaskDefinition{{SchemaName: "s", TableName: "t"}},
			}}},
			wantErr: true,
		},
		{
			name: "依赖自己",
			cfg: &PipelineConfig{Pipelines: []PipelineDefinition{{
				PipelineID: "p1",
				Tasks: []TaskDefinition{{
					Operator:     "create_table_from_select",
					TaskID:       &self,
					Dependencies: []string{"t1"},
				}},
			}}},
			wantErr: true,
		},
		{
			// schema_name缺失由operator报告，这里不拦截
			name: "缺少schema_name",
			cfg: &PipelineConfig{Pipelines: []PipelineDefinition{{
				PipelineID: "p1",
				Tasks:      []TaskDefinition{{Operator: "create_table_from_select", TableName: "t"}},
			}}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePipelineConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePipelineConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
