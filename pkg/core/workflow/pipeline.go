package workflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/LENAX/ctas-pipeline/pkg/core/dag"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
)

// ErrDuplicateTask 同一Pipeline内Task ID重复
var ErrDuplicateTask = errors.New("duplicate task id")

// DefaultArgs Pipeline级默认参数（对外导出）
// 由Pipeline定义方持有，只有当Task未显式提供某个值时才会读取
type DefaultArgs map[string]any

// Lookup 查找默认值
func (d DefaultArgs) Lookup(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[key]
	return v, ok
}

// String 查找字符串默认值，键不存在或类型不是string时ok为false
func (d DefaultArgs) String(key string) (string, bool) {
	v, ok := d.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Pipeline 有向无环的Task集合（对外导出）
type Pipeline struct {
	ID          string
	Description string
	Schedule    string // Cron表达式（秒级），为空表示只能手动触发
	DefaultArgs DefaultArgs

	mu    sync.RWMutex
	tasks map[string]*task.Task
	order []string // 注册顺序
}

// NewPipeline 创建Pipeline（对外导出）
func NewPipeline(id, description string, defaults DefaultArgs) *Pipeline {
	if defaults == nil {
		defaults = DefaultArgs{}
	}
	return &Pipeline{
		ID:          id,
		Description: description,
		DefaultArgs: defaults,
		tasks:       make(map[string]*task.Task),
		order:       make([]string, 0),
	}
}

// AddTask 将Task注册为图中的节点（对外导出）
func (p *Pipeline) AddTask(t *task.Task) error {
	if t == nil {
		return fmt.Errorf("Task不能为nil")
	}
	if t.ID == "" {
		return fmt.Errorf("Task ID不能为空")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s (pipeline %s)", ErrDuplicateTask, t.ID, p.ID)
	}
	p.tasks[t.ID] = t
	p.order = append(p.order, t.ID)
	return nil
}

// GetTask 根据ID获取Task（对外导出）
func (p *Pipeline) GetTask(id string) (*task.Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	return t, ok
}

// Tasks 按注册顺序返回全部Task（对外导出）
func (p *Pipeline) Tasks() []*task.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tasks := make([]*task.Task, 0, len(p.order))
	for _, id := range p.order {
		tasks = append(tasks, p.tasks[id])
	}
	return tasks
}

// Len Task数量
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// Dependencies 返回 后置Task ID -> 前置Task ID列表（对外导出）
func (p *Pipeline) Dependencies() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	deps := make(map[string][]string, len(p.tasks))
	for id, t := range p.tasks {
		if len(t.Dependencies) > 0 {
			deps[id] = t.GetDependencies()
		}
	}
	return deps
}

// BuildDAG 根据当前Task构建DAG（对外导出）
// 依赖不存在或存在循环时返回错误
func (p *Pipeline) BuildDAG() (dag.DAG, error) {
	p.mu.RLock()
	nodes := make(map[string]string, len(p.tasks))
	for id, t := range p.tasks {
		nodes[id] = t.Name
	}
	p.mu.RUnlock()

	d, err := dag.BuildDAG(nodes, p.Dependencies())
	if err != nil {
		return nil, fmt.Errorf("Pipeline %s 构建DAG失败: %w", p.ID, err)
	}
	return d, nil
}

// Validate 校验Pipeline结构（对外导出）
func (p *Pipeline) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("Pipeline ID不能为空")
	}
	if p.Len() == 0 {
		return fmt.Errorf("Pipeline %s 没有任何Task", p.ID)
	}
	_, err := p.BuildDAG()
	return err
}
