package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/operator/createtable"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
)

// ErrUnknownOperator 配置中的operator未注册
var ErrUnknownOperator = errors.New("unknown operator")

// OperatorBuilder 将Task定义补全并注册到Pipeline
type OperatorBuilder func(p *workflow.Pipeline, def config.TaskDefinition) (*task.Task, error)

// OperatorRegistry operator名称到构建函数的映射（对外导出）
type OperatorRegistry struct {
	mu       sync.RWMutex
	builders map[string]OperatorBuilder
}

// NewOperatorRegistry 创建operator注册表，内置create_table_from_select
func NewOperatorRegistry() *OperatorRegistry {
	r := &OperatorRegistry{builders: make(map[string]OperatorBuilder)}
	r.builders[createtable.OperatorName] = buildCreateTable
	return r
}

// Register 注册operator
func (r *OperatorRegistry) Register(name string, builder OperatorBuilder) error {
	if name == "" {
		return fmt.Errorf("operator名称不能为空")
	}
	if builder == nil {
		return fmt.Errorf("operator %s 的构建函数不能为nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("operator %s 已注册", name)
	}
	r.builders[name] = builder
	return nil
}

// Build 按Task定义中的operator构建Task并注册到Pipeline
func (r *OperatorRegistry) Build(p *workflow.Pipeline, def config.TaskDefinition) (*task.Task, error) {
	r.mu.RLock()
	builder, ok := r.builders[def.Operator]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, def.Operator)
	}
	return builder(p, def)
}

// Names 返回已注册的operator名称
func (r *OperatorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildCreateTable(p *workflow.Pipeline, def config.TaskDefinition) (*task.Task, error) {
	return createtable.New(p, createtable.Args{
		SchemaName:     def.SchemaName,
		TableName:      def.TableName,
		PostgresConnID: def.PostgresConnID,
		SQLDirectory:   def.SQLDirectory,
		TaskID:         def.TaskID,
		ProvideContext: def.ProvideContext,
		OpKwargs:       def.OpKwargs,
		Description:    def.Description,
		Dependencies:   def.Dependencies,
		TimeoutSeconds: def.TimeoutSeconds,
		RetryCount:     def.RetryCount,
	})
}
