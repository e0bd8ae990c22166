// Package createtable 将"根据SQL查询重建表"的任务配置补全为通用执行节点配置。
//
// 这里只做参数整理：必需参数校验、Pipeline默认值回退、Task ID推导，
// 并把参数合并进交给执行函数的关键字参数。真正执行SQL的函数见 pkg/ctas。
package createtable

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
)

const (
	// OperatorName Pipeline配置中使用的operator名称
	OperatorName = "create_table_from_select"
	// CallableName 固定的执行函数名称，executor通过它在registry中取函数
	CallableName = "create_table_from_select.run"

	KeySchemaName     = "schema_name"
	KeyTableName      = "table_name"
	KeyPostgresConnID = "postgres_conn_id"
	KeySQLDirectory   = "sql_directory"
)

const (
	SourceTask        = "task"
	SourceDefaultArgs = "default_args"
)

// ErrMissingKey 配置键缺失（或默认值类型不对）
var ErrMissingKey = errors.New("missing configuration key")

// ConfigError 构图阶段的配置错误（对外导出）
type ConfigError struct {
	Key    string // 缺失的键
	Source string // task 或 default_args
	Reason string // 附加说明，可为空
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s.%s (%s)", ErrMissingKey, e.Source, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s", ErrMissingKey, e.Source, e.Key)
}

func (e *ConfigError) Unwrap() error {
	return ErrMissingKey
}

// Args 单个Task的配置（对外导出）
// 指针字段为nil表示未提供，届时回退到Pipeline默认值或推导值
type Args struct {
	SchemaName     string
	TableName      string
	PostgresConnID *string
	SQLDirectory   *string
	TaskID         *string
	ProvideContext *bool
	// OpKwargs 额外传给执行函数的关键字参数，不会被修改
	OpKwargs map[string]any

	Description    string
	Dependencies   []string
	TimeoutSeconds int
	RetryCount     int
}

// DefaultTaskID 推导Task ID: create_<schema>_<table>_task（对外导出）
func DefaultTaskID(schemaName, tableName string) string {
	return "create_" + schemaName + "_" + tableName + "_task"
}

// Resolve 根据Pipeline默认值补全配置，返回完整的Task（对外导出）
func Resolve(args Args, defaults workflow.DefaultArgs) (*task.Task, error) {
	if args.SchemaName == "" {
		return nil, &ConfigError{Key: KeySchemaName, Source: SourceTask}
	}
	if args.TableName == "" {
		return nil, &ConfigError{Key: KeyTableName, Source: SourceTask}
	}

	connID, err := resolveString(args.PostgresConnID, KeyPostgresConnID, defaults)
	if err != nil {
		return nil, err
	}
	sqlDir, err := resolveString(args.SQLDirectory, KeySQLDirectory, defaults)
	if err != nil {
		return nil, err
	}

	taskID := DefaultTaskID(args.SchemaName, args.TableName)
	if args.TaskID != nil {
		taskID = *args.TaskID
	}

	provideContext := true
	if args.ProvideContext != nil {
		provideContext = *args.ProvideContext
	}

	params := maps.Clone(args.OpKwargs)
	if params == nil {
		params = make(map[string]any, 4)
	}
	params[KeySchemaName] = args.SchemaName
	params[KeyTableName] = args.TableName
	params[KeyPostgresConnID] = connID
	params[KeySQLDirectory] = sqlDir

	t := task.NewTask(taskID, CallableName, params)
	t.Description = args.Description
	if t.Description == "" {
		t.Description = fmt.Sprintf("(Re-)create %s.%s from SQL", args.SchemaName, args.TableName)
	}
	t.ProvideContext = provideContext
	t.Dependencies = slices.Clone(args.Dependencies)
	t.TimeoutSeconds = args.TimeoutSeconds
	t.RetryCount = args.RetryCount
	return t, nil
}

// New 补全配置并注册到Pipeline（对外导出）
// 补全失败时不会向Pipeline注册任何节点
func New(p *workflow.Pipeline, args Args) (*task.Task, error) {
	if p == nil {
		return nil, fmt.Errorf("Pipeline不能为nil")
	}
	t, err := Resolve(args, p.DefaultArgs)
	if err != nil {
		return nil, err
	}
	if err := p.AddTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// resolveString 空字符串与未提供同样视为缺失
func resolveString(explicit *string, key string, defaults workflow.DefaultArgs) (string, error) {
	if explicit != nil {
		if *explicit == "" {
			return "", &ConfigError{Key: key, Source: SourceTask, Reason: "empty value"}
		}
		return *explicit, nil
	}
	v, ok := defaults.Lookup(key)
	if !ok {
		return "", &ConfigError{Key: key, Source: SourceDefaultArgs}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigError{Key: key, Source: SourceDefaultArgs, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	if s == "" {
		return "", &ConfigError{Key: key, Source: SourceDefaultArgs, Reason: "empty value"}
	}
	return s, nil
}
