package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// StepInfo 步骤状态信息
type StepInfo struct {
	Step       string     `json:"step"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration,omitempty"`
	ErrorID    string     `json:"error_id,omitempty"`
}

// WorkflowSummary 工作流摘要信息
type WorkflowSummary struct {
	ID           string    `json:"id"`
	ModuleName   string    `json:"module_name"`
	State        string    `json:"state"`
	CurrentStep  string    `json:"current_step,omitempty"`
	Progress     float64   `json:"progress"`
	EstimatedETA string    `json:"estimated_eta,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkflowDetail 工作流详细信息
type WorkflowDetail struct {
	WorkflowSummary
	Steps    []StepInfo             `json:"steps"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	ErrorIDs []string               `json:"error_ids,omitempty"`
}

// StepResultResponse 单步执行结果响应
type StepResultResponse struct {
	WorkflowID string `json:"workflow_id"`
	Step       string `json:"step"`
	StepIndex  int    `json:"step_index"`
	Status     string `json:"status"`
	Duration   string `json:"duration,omitempty"`
	ErrorID    string `json:"error_id,omitempty"`
	Completed  bool   `json:"completed"`
	Cancelled  bool   `json:"cancelled"`
}

// RollbackResponse 回滚结果响应
type RollbackResponse struct {
	WorkflowID  string   `json:"workflow_id"`
	TargetIndex int      `json:"target_index"`
	Compensated []string `json:"compensated"`
	Partial     bool     `json:"partial"`
	ErrorID     string   `json:"error_id,omitempty"`
	FinalState  string   `json:"final_state"`
}

// ErrorRecordDetail 错误记录详细信息
type ErrorRecordDetail struct {
	ID              string                 `json:"id"`
	Category        string                 `json:"category"`
	Severity        string                 `json:"severity"`
	Message         string                 `json:"message"`
	WorkflowID      string                 `json:"workflow_id,omitempty"`
	ModuleName      string                 `json:"module_name,omitempty"`
	Step            string                 `json:"step,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
	RecoveryActions []string               `json:"recovery_actions"`
	Timestamp       time.Time              `json:"timestamp"`
	Resolved        bool                   `json:"resolved"`
}

// RecoveryResultResponse 恢复动作执行结果响应
type RecoveryResultResponse struct {
	ErrorID  string `json:"error_id"`
	ActionID string `json:"action_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}

// BulkRunResponse 批量操作启动响应
type BulkRunResponse struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`
	Total int    `json:"total"`
}

// BulkResultResponse 批量操作结果响应
type BulkResultResponse struct {
	RunID     string              `json:"run_id"`
	Kind      string              `json:"kind"`
	State     string              `json:"state"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Skipped   int                 `json:"skipped"`
	Outcomes  []BulkOutcomeDetail `json:"outcomes"`
	StartTime time.Time           `json:"start_time"`
	EndTime   *time.Time          `json:"end_time,omitempty"`
}

// BulkOutcomeDetail 批量操作单模块结果
type BulkOutcomeDetail struct {
	ModuleName string `json:"module_name"`
	Status     string `json:"status"`
	WorkflowID string `json:"workflow_id,omitempty"`
	ErrorID    string `json:"error_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
