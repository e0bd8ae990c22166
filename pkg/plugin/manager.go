package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	log "github.com/sirupsen/logrus"
)

// Binding 插件绑定规则（对外导出）
type Binding struct {
	PluginName string                    // 插件名称
	Event      executor.EventType        // 触发事件
	Condition  func(n Notification) bool // 可选：满足条件才触发
}

// Manager 插件管理器（对外导出）
type Manager struct {
	plugins  map[string]Plugin                // 插件名称 -> 插件实例
	bindings map[executor.EventType][]Binding // 事件类型 -> 绑定列表
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewManager 创建插件管理器（对外导出）
func NewManager() *Manager {
	return &Manager{
		plugins:  make(map[string]Plugin),
		bindings: make(map[executor.EventType][]Binding),
	}
}

// NewManagerFromConfig 按通知配置创建并绑定插件（对外导出）
// 同一插件出现多次时只初始化一次，使用第一次出现的参数
func NewManagerFromConfig(notifications []config.NotificationConfig) (*Manager, error) {
	m := NewManager()
	for i, n := range notifications {
		if _, ok := m.GetPlugin(n.Plugin); !ok {
			p, err := New(n.Plugin)
			if err != nil {
				return nil, fmt.Errorf("notifications[%d]: %w", i, err)
			}
			if err := m.RegisterWithInit(p, n.Params); err != nil {
				return nil, fmt.Errorf("notifications[%d]: %w", i, err)
			}
		}
		cond := pipelineFilter(n.Pipelines)
		for _, ev := range n.Events {
			if err := m.Bind(Binding{PluginName: n.Plugin, Event: executor.EventType(ev), Condition: cond}); err != nil {
				return nil, fmt.Errorf("notifications[%d]: %w", i, err)
			}
		}
	}
	return m, nil
}

// pipelineFilter 只对列出的Pipeline生效，列表为空表示全部
func pipelineFilter(pipelines []string) func(Notification) bool {
	if len(pipelines) == 0 {
		return nil
	}
	return func(n Notification) bool {
		return slices.Contains(pipelines, n.PipelineID)
	}
}

// Register 注册插件
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("插件不能为空")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}
	m.plugins[name] = p
	return nil
}

// RegisterWithInit 注册并初始化插件，初始化失败时撤销注册
func (m *Manager) RegisterWithInit(p Plugin, params map[string]string) error {
	if err := m.Register(p); err != nil {
		return err
	}
	if err := p.Init(params); err != nil {
		m.mu.Lock()
		delete(m.plugins, p.Name())
		m.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", p.Name(), err)
	}
	return nil
}

// Bind 绑定插件到事件
func (m *Manager) Bind(b Binding) error {
	if b.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}
	if b.Event == "" {
		return fmt.Errorf("触发事件不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[b.PluginName]; !exists {
		return fmt.Errorf("插件 %s 未注册", b.PluginName)
	}
	m.bindings[b.Event] = append(m.bindings[b.Event], b)
	return nil
}

// Trigger 按绑定规则把通知分发给插件，汇总各插件的错误
func (m *Manager) Trigger(ctx context.Context, n Notification) error {
	m.mu.RLock()
	bindings := slices.Clone(m.bindings[n.Event])
	m.mu.RUnlock()

	var errs []error
	for _, b := range bindings {
		if b.Condition != nil && !b.Condition(n) {
			continue
		}
		p, ok := m.GetPlugin(b.PluginName)
		if !ok {
			continue
		}
		if err := p.Execute(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", b.PluginName, err))
		}
	}
	return errors.Join(errs...)
}

// Events 已绑定的事件类型
func (m *Manager) Events() []executor.EventType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]executor.EventType, 0, len(m.bindings))
	for ev, bs := range m.bindings {
		if len(bs) > 0 {
			events = append(events, ev)
		}
	}
	slices.Sort(events)
	return events
}

// Attach 订阅事件总线上的全部事件类型并按当时的绑定分发，ctx取消或总线关闭后退出
// Attach之后追加的绑定同样生效
func (m *Manager) Attach(ctx context.Context, bus *executor.EventBus) error {
	for _, ev := range executor.EventTypes {
		ch, err := bus.Subscribe(ctx, ev)
		if err != nil {
			return err
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for event := range ch {
				if err := m.Trigger(ctx, FromEvent(event)); err != nil {
					log.WithError(err).WithFields(log.Fields{
						"event":  event.Type,
						"run_id": event.RunID,
					}).Warn("[插件] 通知发送失败")
				}
			}
		}()
	}
	return nil
}

// Wait 等待Attach启动的分发协程退出
func (m *Manager) Wait() {
	m.wg.Wait()
}

// GetPlugin 获取已注册的插件
func (m *Manager) GetPlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// ListPlugins 列出已注册的插件（排序后）
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Unregister 取消注册插件并移除相关绑定
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}
	delete(m.plugins, name)

	for ev, bs := range m.bindings {
		m.bindings[ev] = slices.DeleteFunc(bs, func(b Binding) bool { return b.PluginName == name })
	}
	return nil
}
