package plugin

import "github.com/LENAX/module-engine/pkg/core/events"

// NotificationData 传递给插件的通知数据（对外导出）
type NotificationData struct {
	Event      events.EventType       // 触发事件
	WorkflowID string                 // 工作流ID（如果有）
	RunID      string                 // 批量操作ID（如果有）
	ModuleName string                 // 模块名称（如果有）
	Step       string                 // 步骤名称（如果有）
	ErrorID    string                 // 错误记录ID（如果有）
	Data       map[string]interface{} // 自定义数据
}

// Plugin 通知插件接口（对外导出）
// 插件订阅引擎事件，在工作流/批量操作状态变化时执行通知动作
type Plugin interface {
	// Name 插件名称（唯一）
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Execute 执行通知
	Execute(data NotificationData) error
}
