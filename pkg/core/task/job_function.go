package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrFunctionNotFound 函数未注册
	ErrFunctionNotFound = errors.New("job function not registered")
	// ErrInvalidConfig Task配置有误，重试也无法成功
	ErrInvalidConfig = errors.New("invalid task configuration")
)

// JobFunction 调度用统一函数签名（对外导出）
// 参数通过TaskContext传递；返回值作为Task结果记录
type JobFunction func(tc *TaskContext) (any, error)

// JobFunctionMeta Job函数元数据（对外导出）
type JobFunctionMeta struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreateTime  time.Time `json:"create_time"`
}

// FunctionRegistry Job函数注册中心（对外导出）
// 按名称保存函数，Task通过JobFuncName引用
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]JobFunction
	metaMap   map[string]*JobFunctionMeta
}

// NewFunctionRegistry 创建函数注册中心（对外导出）
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]JobFunction),
		metaMap:   make(map[string]*JobFunctionMeta),
	}
}

// Register 注册Job函数（对外导出）
// name: 函数名称（唯一）；fn: 函数实现；description: 描述（可选）
func (r *FunctionRegistry) Register(name string, fn JobFunction, description string) error {
	if name == "" {
		return fmt.Errorf("函数名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("函数 %s 不能为nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("函数 %s 已注册", name)
	}
	r.functions[name] = fn
	r.metaMap[name] = &JobFunctionMeta{
		Name:        name,
		Description: description,
		CreateTime:  time.Now(),
	}
	return nil
}

// Get 根据名称获取函数（对外导出）
func (r *FunctionRegistry) Get(name string) (JobFunction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// Exists 检查函数是否已注册（对外导出）
func (r *FunctionRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// GetMeta 获取函数元数据（对外导出）
func (r *FunctionRegistry) GetMeta(name string) *JobFunctionMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metaMap[name]
}

// Unregister 注销函数（对外导出）
func (r *FunctionRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.functions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	delete(r.functions, name)
	delete(r.metaMap, name)
	return nil
}

// List 返回按名称排序的全部函数元数据（对外导出）
func (r *FunctionRegistry) List() []*JobFunctionMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]*JobFunctionMeta, 0, len(r.metaMap))
	for _, meta := range r.metaMap {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}
