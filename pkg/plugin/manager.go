package plugin

import (
	"fmt"
	"log"
	"sync"

	"github.com/LENAX/module-engine/pkg/core/events"
)

// Binding 插件绑定规则（对外导出）
type Binding struct {
	PluginName string                           // 插件名称
	Event      events.EventType                 // 触发事件
	Condition  func(data NotificationData) bool // 可选：条件函数，满足条件才触发
}

// Manager 插件管理器接口（对外导出）
type Manager interface {
	// Register 注册插件
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化插件
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 绑定插件到事件
	Bind(binding Binding) error
	// Trigger 触发绑定到事件的插件
	Trigger(event events.EventType, data NotificationData) error
	// AttachBus 订阅事件总线，自动触发绑定的插件
	AttachBus(bus events.Bus) error
	// GetPlugin 获取已注册的插件
	GetPlugin(name string) (Plugin, bool)
	// ListPlugins 列出所有已注册的插件
	ListPlugins() []string
	// Unregister 取消注册插件
	Unregister(name string) error
}

// managerImpl 插件管理器实现（内部实现）
type managerImpl struct {
	plugins  map[string]Plugin              // 已注册的插件（插件名称 -> 插件实例）
	bindings map[events.EventType][]Binding // 事件绑定（事件类型 -> 绑定列表）
	attached map[events.EventType]bool      // 已订阅总线的事件类型
	subs     []events.SubscriptionID        // 总线订阅ID
	mu       sync.RWMutex                   // 读写锁
}

// NewManager 创建插件管理器（对外导出）
func NewManager() Manager {
	return &managerImpl{
		plugins:  make(map[string]Plugin),
		bindings: make(map[events.EventType][]Binding),
		attached: make(map[events.EventType]bool),
	}
}

// Register 注册插件（实现Manager接口）
func (m *managerImpl) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}

	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}

	m.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件（实现Manager接口）
func (m *managerImpl) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := m.Register(plugin); err != nil {
		return err
	}

	// 初始化插件
	if err := plugin.Init(params); err != nil {
		// 初始化失败，移除已注册的插件
		m.mu.Lock()
		delete(m.plugins, plugin.Name())
		m.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}

	return nil
}

// Bind 绑定插件到事件（实现Manager接口）
func (m *managerImpl) Bind(binding Binding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	if binding.Event == "" {
		return fmt.Errorf("触发事件不能为空")
	}

	m.mu.RLock()
	_, exists := m.plugins[binding.PluginName]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bindings[binding.Event] = append(m.bindings[binding.Event], binding)
	return nil
}

// Trigger 触发插件（实现Manager接口）
func (m *managerImpl) Trigger(event events.EventType, data NotificationData) error {
	m.mu.RLock()
	bindings, exists := m.bindings[event]
	m.mu.RUnlock()

	if !exists || len(bindings) == 0 {
		return nil // 没有绑定，直接返回
	}

	var errs []error
	for _, binding := range bindings {
		// 检查条件
		if binding.Condition != nil && !binding.Condition(data) {
			continue
		}

		// 获取插件
		m.mu.RLock()
		plugin, exists := m.plugins[binding.PluginName]
		m.mu.RUnlock()

		if !exists {
			continue // 插件不存在，跳过
		}

		// 执行插件
		if err := plugin.Execute(data); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", binding.PluginName, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("触发插件失败: %v", errs)
	}

	return nil
}

// AttachBus 订阅事件总线（实现Manager接口）
// 为当前所有已绑定的事件类型建立订阅，插件失败只记录日志不影响总线
func (m *managerImpl) AttachBus(bus events.Bus) error {
	if bus == nil {
		return fmt.Errorf("事件总线不能为空")
	}

	m.mu.Lock()
	eventTypes := make([]events.EventType, 0, len(m.bindings))
	for eventType := range m.bindings {
		if !m.attached[eventType] {
			eventTypes = append(eventTypes, eventType)
			m.attached[eventType] = true
		}
	}
	m.mu.Unlock()

	for _, eventType := range eventTypes {
		id, err := bus.Subscribe(eventType, func(event *events.Event) error {
			if err := m.Trigger(event.Type, fromEvent(event)); err != nil {
				log.Printf("⚠️ 通知插件执行失败: event=%s, err=%v", event.Type, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("订阅事件 %s 失败: %w", eventType, err)
		}
		m.mu.Lock()
		m.subs = append(m.subs, id)
		m.mu.Unlock()
	}
	return nil
}

// fromEvent 将总线事件转换为通知数据（内部方法）
func fromEvent(event *events.Event) NotificationData {
	data := NotificationData{
		Event:      event.Type,
		WorkflowID: event.WorkflowID,
		RunID:      event.RunID,
		ModuleName: event.ModuleName,
	}
	// 总线投递的事件经过JSON反序列化，负载为map
	switch payload := event.Payload.(type) {
	case *events.StepPayload:
		if payload != nil {
			data.Step = payload.Step
			data.ErrorID = payload.ErrorID
		}
	case map[string]interface{}:
		if step, ok := payload["step"].(string); ok {
			data.Step = step
		}
		if errorID, ok := payload["error_id"].(string); ok {
			data.ErrorID = errorID
		}
	}
	return data
}

// GetPlugin 获取已注册的插件（实现Manager接口）
func (m *managerImpl) GetPlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plugin, exists := m.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（实现Manager接口）
func (m *managerImpl) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}

// Unregister 取消注册插件（实现Manager接口）
func (m *managerImpl) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}

	delete(m.plugins, name)

	// 移除所有相关的绑定
	for event := range m.bindings {
		filtered := make([]Binding, 0)
		for _, binding := range m.bindings[event] {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		m.bindings[event] = filtered
	}

	return nil
}
