// Package events 提供引擎生命周期事件的发布订阅支持
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 工作流生命周期事件
	EventWorkflowStarted    EventType = "workflow.started"        // 工作流启动
	EventStepCompleted      EventType = "workflow.step.completed" // 步骤完成
	EventStepFailed         EventType = "workflow.step.failed"    // 步骤失败
	EventWorkflowRolledBack EventType = "workflow.rolledback"     // 工作流回滚完成
	EventWorkflowCompleted  EventType = "workflow.completed"      // 工作流完成
	EventWorkflowCancelled  EventType = "workflow.cancelled"      // 工作流取消

	// 批量操作事件
	EventBulkProgress  EventType = "bulk.progress"  // 批量操作进度
	EventBulkCompleted EventType = "bulk.completed" // 批量操作完成
)

// Event 引擎事件基础结构
type Event struct {
	ID         string            `json:"id"`          // 事件ID（UUID）
	Type       EventType         `json:"type"`        // 事件类型
	WorkflowID string            `json:"workflow_id"` // 关联工作流ID（如果有）
	RunID      string            `json:"run_id"`      // 关联批量操作ID（如果有）
	ModuleName string            `json:"module_name"` // 关联模块名称（如果有）
	Timestamp  time.Time         `json:"timestamp"`   // 事件时间
	Payload    interface{}       `json:"payload"`     // 事件负载
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// NewEvent 创建引擎事件
func NewEvent(eventType EventType, workflowID, moduleName string, payload interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		WorkflowID: workflowID,
		ModuleName: moduleName,
		Timestamp:  time.Now(),
		Payload:    payload,
		Metadata:   make(map[string]string),
	}
}

// NewBulkEvent 创建批量操作事件
func NewBulkEvent(eventType EventType, runID string, payload interface{}) *Event {
	e := NewEvent(eventType, "", "", payload)
	e.RunID = runID
	return e
}

// WithMetadata 添加元数据
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// StepPayload 步骤事件负载
type StepPayload struct {
	Step      string  `json:"step"`                // 步骤名称
	StepIndex int     `json:"step_index"`          // 步骤索引
	Progress  float64 `json:"progress"`            // 工作流进度
	ErrorID   string  `json:"error_id,omitempty"`  // 错误记录ID（失败时）
	Duration  string  `json:"duration,omitempty"`  // 步骤耗时
}

// RollbackPayload 回滚事件负载
type RollbackPayload struct {
	FromIndex   int      `json:"from_index"`   // 回滚起始索引
	TargetIndex int      `json:"target_index"` // 回滚目标索引
	Compensated []string `json:"compensated"`  // 按执行顺序补偿的步骤
}

// BulkProgressPayload 批量操作进度负载
type BulkProgressPayload struct {
	Kind      string `json:"kind"`      // 操作类型
	Succeeded int    `json:"succeeded"` // 成功数
	Failed    int    `json:"failed"`    // 失败数
	Skipped   int    `json:"skipped"`   // 跳过数
	Total     int    `json:"total"`     // 总数
}

// Handler 事件处理器函数类型
type Handler func(event *Event) error

// SubscriptionID 订阅ID类型
type SubscriptionID string
