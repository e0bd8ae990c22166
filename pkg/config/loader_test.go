package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEngineConfig(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "engine.yaml")
	configContent := `
ctas-pipeline:
  general:
    instance_name: "test-pipeline"
    log_level: "debug"
    env: "test"
  storage:
    database:
      type: "sqlite"
      dsn: "./runs.db"
      max_open_conns: 5
      max_idle_conns: 2
      conn_max_lifetime: "1h"
  connections:
    warehouse:
      type: "postgres"
      dsn: "postgres://etl@localhost:5432/dw?sslmode=disable"
    local:
      type: "sqlite"
      dsn: "./local.db"
  execution:
    default_task_timeout: "60s"
    worker_concurrency: 2
    retry:
      enabled: true
      max_attempts: 5
      delay: "2s"
      max_delay: "10s"
  sql_cache:
    enabled: true
    ttl: "10m"
  api:
    listen_addr: ":9090"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadEngineConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test-pipeline", cfg.Pipeline.General.InstanceName)
	assert.Equal(t, "debug", cfg.Pipeline.General.LogLevel)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "./runs.db", cfg.GetDatabaseDSN())
	assert.Equal(t, time.Hour, cfg.Pipeline.Storage.Database.ConnMaxLifetime)
	assert.Equal(t, 2, cfg.GetWorkerConcurrency())
	assert.Equal(t, 60*time.Second, cfg.GetDefaultTaskTimeout())
	assert.Equal(t, 5, cfg.Pipeline.Execution.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.SQLCache.TTL)
	assert.Equal(t, ":9090", cfg.Pipeline.API.ListenAddr)

	require.Len(t, cfg.Pipeline.Connections, 2)
	assert.Equal(t, "postgres", cfg.Pipeline.Connections["warehouse"].Type)
	assert.Equal(t, "./local.db", cfg.Pipeline.Connections["local"].DSN)
}

func TestLoadEngineConfig_WithDefaults(t *testing.T) {
	cfg, err := LoadEngineConfig("")
	require.NoError(t, err)

	assert.Equal(t, "ctas-pipeline", cfg.Pipeline.General.InstanceName)
	assert.Equal(t, "info", cfg.Pipeline.General.LogLevel)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "./ctas_pipeline.db", cfg.GetDatabaseDSN())
	assert.Equal(t, 4, cfg.GetWorkerConcurrency())
	assert.Equal(t, 30*time.Minute, cfg.GetDefaultTaskTimeout())
	assert.Equal(t, 3, cfg.Pipeline.Execution.Retry.MaxAttempts)
	assert.Equal(t, ":8080", cfg.Pipeline.API.ListenAddr)
}

func TestLoadEngineConfig_MissingFile(t *testing.T) {
	_, err := LoadEngineConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEngineConfig_InvalidConnection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "engine.yaml")
	configContent := `
ctas-pipeline:
  connections:
    warehouse:
      type: "oracle"
      dsn: "x"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	_, err := LoadEngineConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connections.warehouse.type")
}

func TestLoadPipelineConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "pipelines.yaml")
	configContent := `
pipelines:
  - pipeline_id: daily_marts
    description: "nightly mart rebuild"
    schedule: "0 0 2 * * *"
    default_args:
      postgres_conn_id: warehouse
      sql_directory: /opt/sql
      owner: data
    tasks:
      - operator: create_table_from_select
        schema_name: marts
        table_name: daily_sales
        op_kwargs:
          region: emea
      - operator: create_table_from_select
        schema_name: marts
        table_name: weekly_sales
        task_id: weekly
        provide_context: false
        postgres_conn_id: reporting
        dependencies: [create_marts_daily_sales_task]
        timeout_seconds: 600
        retry_count: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadPipelineConfig(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Pipelines, 1)

	p := cfg.GetPipelineByID("daily_marts")
	require.NotNil(t, p)
	assert.Equal(t, "0 0 2 * * *", p.Schedule)
	assert.Equal(t, "warehouse", p.DefaultArgs["postgres_conn_id"])
	require.Len(t, p.Tasks, 2)

	first := p.Tasks[0]
	assert.Nil(t, first.TaskID)
	assert.Nil(t, first.PostgresConnID)
	assert.Nil(t, first.ProvideContext)
	assert.Equal(t, "emea", first.OpKwargs["region"])

	second := p.Tasks[1]
	require.NotNil(t, second.TaskID)
	assert.Equal(t, "weekly", *second.TaskID)
	require.NotNil(t, second.ProvideContext)
	assert.False(t, *second.ProvideContext)
	require.NotNil(t, second.PostgresConnID)
	assert.Equal(t, "reporting", *second.PostgresConnID)
	assert.Nil(t, second.SQLDirectory)
	assert.Equal(t, []string{"create_marts_daily_sales_task"}, second.Dependencies)
	assert.Equal(t, 600, second.TimeoutSeconds)
	assert.Equal(t, 2, second.RetryCount)

	assert.Nil(t, cfg.GetPipelineByID("missing"))
}
