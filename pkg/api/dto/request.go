package dto

// StartWorkflowRequest 创建工作流请求
type StartWorkflowRequest struct {
	ModuleName string                 `json:"module_name" binding:"required"`
	Metadata   map[string]interface{} `json:"metadata" binding:"omitempty"`
}

// RollbackRequest 回滚请求
// TargetStep为空表示完全回滚
type RollbackRequest struct {
	TargetStep string `json:"target_step" binding:"omitempty,oneof=Download Validate Install Configure Enable"`
}

// BulkRequest 批量操作请求
type BulkRequest struct {
	Kind    string   `json:"kind" binding:"required,oneof=install update enable disable validate backup delete"`
	Modules []string `json:"modules" binding:"required,min=1"`
}

// RecoveryRequest 恢复动作执行请求
type RecoveryRequest struct {
	ActionID string `json:"action_id" binding:"required"`
}

// ErrorHistoryQueryRequest 错误历史查询请求
type ErrorHistoryQueryRequest struct {
	Category   string `form:"category" binding:"omitempty"`
	Severity   string `form:"severity" binding:"omitempty,oneof=info warning error critical"`
	ModuleName string `form:"module_name" binding:"omitempty"`
	WorkflowID string `form:"workflow_id" binding:"omitempty"`
	Unresolved bool   `form:"unresolved" binding:"omitempty"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// GetDefaultLimit 获取默认limit
func (r *ErrorHistoryQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 100
	}
	return r.Limit
}
