package failure

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// 内置恢复动作ID（对外导出）
const (
	// ActionRetryDownload 重试下载
	ActionRetryDownload = "retry_download"
	// ActionUseMirror 切换镜像源后重试
	ActionUseMirror = "use_mirror"
	// ActionSkipValidation 跳过校验（人工确认，仅在元数据允许不安全操作时提供）
	ActionSkipValidation = "skip_validation"
	// ActionRetryInstall 重试安装
	ActionRetryInstall = "retry_install"
	// ActionCleanupDisk 清理磁盘空间后重试
	ActionCleanupDisk = "cleanup_disk"
	// ActionResetConfig 重置为默认配置
	ActionResetConfig = "reset_config"
	// ActionInstallDependency 安装缺失的依赖模块
	ActionInstallDependency = "install_dependency"
)

// RecoveryFunc 恢复动作执行函数签名（对外导出）
type RecoveryFunc func(ctx context.Context, record *ErrorRecord) error

// RecoveryAction 恢复动作（对外导出）
// 仅持有自身标识，不拥有任何实体，按需绑定到ErrorRecord执行
type RecoveryAction struct {
	ID          string       // 动作ID
	Description string       // 人类可读描述
	Handler     RecoveryFunc // 执行函数
}

// RecoveryResult 恢复动作执行结果（对外导出）
type RecoveryResult struct {
	ErrorID  string `json:"error_id"`          // 错误记录ID
	ActionID string `json:"action_id"`         // 恢复动作ID
	Success  bool   `json:"success"`           // 是否成功
	Message  string `json:"message,omitempty"` // 失败原因（失败时）
}

// actionTable 恢复动作静态表（内部实现）
// 分类到候选动作的映射在初始化后只读
type actionTable struct {
	byCategory map[Category][]string
	mu         sync.RWMutex
	registered map[string]*RecoveryAction
}

// newActionTable 创建恢复动作表（内部方法）
func newActionTable() *actionTable {
	return &actionTable{
		byCategory: map[Category][]string{
			CategoryDownload:      {ActionRetryDownload, ActionUseMirror},
			CategoryNetwork:       {ActionRetryDownload, ActionUseMirror},
			CategoryValidation:    {ActionSkipValidation},
			CategoryInstallation:  {ActionRetryInstall, ActionCleanupDisk},
			CategoryConfiguration: {ActionResetConfig},
			CategoryDependency:    {ActionInstallDependency},
		},
		registered: make(map[string]*RecoveryAction),
	}
}

// candidatesFor 查找分类对应的候选动作（内部方法）
// skip_validation仅在工作流元数据显式允许不安全操作时提供
func (t *actionTable) candidatesFor(category Category, metadata map[string]interface{}) []string {
	candidates, ok := t.byCategory[category]
	if !ok {
		return nil
	}

	result := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == ActionSkipValidation && !allowUnsafe(metadata) {
			continue
		}
		result = append(result, id)
	}
	return result
}

// allowUnsafe 检查元数据是否允许不安全操作（内部方法）
func allowUnsafe(metadata map[string]interface{}) bool {
	if metadata == nil {
		return false
	}
	v, ok := metadata["allow_unsafe"]
	if !ok {
		return false
	}
	allowed, ok := v.(bool)
	return ok && allowed
}

// RegisterRecoveryAction 注册恢复动作实现（对外导出）
func (c *Classifier) RegisterRecoveryAction(action *RecoveryAction) error {
	if action == nil || action.ID == "" {
		return fmt.Errorf("恢复动作不能为空")
	}
	c.actions.mu.Lock()
	defer c.actions.mu.Unlock()
	if _, exists := c.actions.registered[action.ID]; exists {
		return fmt.Errorf("恢复动作 %s 已注册", action.ID)
	}
	c.actions.registered[action.ID] = action
	return nil
}

// RecoveryActionsFor 查询错误记录的候选恢复动作（对外导出）
func (c *Classifier) RecoveryActionsFor(record *ErrorRecord) []string {
	if record == nil {
		return nil
	}
	result := make([]string, len(record.RecoveryActions))
	copy(result, record.RecoveryActions)
	return result
}

// DescribeRecoveryAction 获取恢复动作描述（对外导出）
func (c *Classifier) DescribeRecoveryAction(actionID string) (string, bool) {
	c.actions.mu.RLock()
	defer c.actions.mu.RUnlock()
	action, ok := c.actions.registered[actionID]
	if !ok {
		return "", false
	}
	return action.Description, true
}

// ExecuteRecoveryAction 执行恢复动作（对外导出）
// 动作必须是该错误分类的候选动作且已注册实现，否则返回ErrUnknownAction；
// 底层恢复的成功或失败如实上报，绝不静默吞掉
func (c *Classifier) ExecuteRecoveryAction(ctx context.Context, errorID, actionID string) (*RecoveryResult, error) {
	record, ok := c.GetRecord(errorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownError, errorID)
	}

	// 动作必须在该错误的候选列表中
	valid := false
	for _, id := range record.RecoveryActions {
		if id == actionID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("%w: action=%s, category=%s", ErrUnknownAction, actionID, record.Category)
	}

	c.actions.mu.RLock()
	action, registered := c.actions.registered[actionID]
	c.actions.mu.RUnlock()
	if !registered {
		return nil, fmt.Errorf("%w: action=%s", ErrUnknownAction, actionID)
	}

	log.Printf("🔄 执行恢复动作: ErrorID=%s, Action=%s", errorID, actionID)
	if err := action.Handler(ctx, record); err != nil {
		log.Printf("❌ 恢复动作执行失败: ErrorID=%s, Action=%s, Error=%v", errorID, actionID, err)
		return &RecoveryResult{
			ErrorID:  errorID,
			ActionID: actionID,
			Success:  false,
			Message:  err.Error(),
		}, nil
	}

	// 恢复成功后置位Resolved标记
	c.mu.Lock()
	record.Resolved = true
	c.mu.Unlock()
	if c.store != nil {
		if saveErr := c.store.SaveErrorRecord(ctx, record); saveErr != nil {
			log.Printf("⚠️ 更新错误记录Resolved标记失败: ErrorID=%s, Error=%v", errorID, saveErr)
		}
	}

	log.Printf("✅ 恢复动作执行成功: ErrorID=%s, Action=%s", errorID, actionID)
	return &RecoveryResult{ErrorID: errorID, ActionID: actionID, Success: true}, nil
}
