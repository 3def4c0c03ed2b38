package lifecycle

// Step 生命周期步骤枚举（对外导出）
type Step string

const (
	// StepDownload 下载模块安装包
	StepDownload Step = "Download"
	// StepValidate 校验安装包完整性
	StepValidate Step = "Validate"
	// StepInstall 安装到目标目录
	StepInstall Step = "Install"
	// StepConfigure 合并模块配置
	StepConfigure Step = "Configure"
	// StepEnable 启用模块
	StepEnable Step = "Enable"
)

// DefaultSteps 返回标准生命周期步骤序列（对外导出）
// 顺序固定：Download -> Validate -> Install -> Configure -> Enable
func DefaultSteps() []Step {
	return []Step{StepDownload, StepValidate, StepInstall, StepConfigure, StepEnable}
}

// IsValid 检查步骤是否有效（对外导出）
func (s Step) IsValid() bool {
	switch s {
	case StepDownload, StepValidate, StepInstall, StepConfigure, StepEnable:
		return true
	default:
		return false
	}
}

// StepStatus 步骤执行状态枚举（对外导出）
type StepStatus string

const (
	// StepStatusPending 待执行状态（初始状态）
	StepStatusPending StepStatus = "Pending"
	// StepStatusRunning 执行中状态
	StepStatusRunning StepStatus = "Running"
	// StepStatusSucceeded 执行成功状态（终态，可被回滚）
	StepStatusSucceeded StepStatus = "Succeeded"
	// StepStatusFailed 执行失败状态（终态）
	StepStatusFailed StepStatus = "Failed"
	// StepStatusRolledBack 已回滚状态（补偿执行成功后）
	StepStatusRolledBack StepStatus = "RolledBack"
)

// IsTerminal 检查步骤状态是否为终态（对外导出）
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusRolledBack:
		return true
	default:
		return false
	}
}

// WorkflowState 工作流整体状态枚举（对外导出）
type WorkflowState string

const (
	// WorkflowStateActive 活跃状态（初始状态，可继续推进步骤）
	WorkflowStateActive WorkflowState = "Active"
	// WorkflowStateCompleted 已完成状态（所有步骤成功，终态）
	WorkflowStateCompleted WorkflowState = "Completed"
	// WorkflowStateFailed 失败状态（某一步骤失败，可回滚）
	WorkflowStateFailed WorkflowState = "Failed"
	// WorkflowStateRolledBack 已回滚状态（终态，持久化层保留的历史状态）
	// 引擎回滚成功后恢复Active而非进入此状态
	WorkflowStateRolledBack WorkflowState = "RolledBack"
	// WorkflowStatePartiallyRolledBack 部分回滚状态（补偿执行失败，终态）
	// 回滚过程中补偿失败时进入此状态，区别于静默成功
	WorkflowStatePartiallyRolledBack WorkflowState = "PartiallyRolledBack"
	// WorkflowStateCancelled 已取消状态（协作式取消，终态）
	WorkflowStateCancelled WorkflowState = "Cancelled"
)

// IsValid 检查状态是否有效（对外导出）
func (s WorkflowState) IsValid() bool {
	switch s {
	case WorkflowStateActive,
		WorkflowStateCompleted,
		WorkflowStateFailed,
		WorkflowStateRolledBack,
		WorkflowStatePartiallyRolledBack,
		WorkflowStateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal 检查状态是否为终态（对外导出）
// Failed 不是终态：失败的工作流仍可通过回滚恢复为 Active
func (s WorkflowState) IsTerminal() bool {
	switch s {
	case WorkflowStateCompleted,
		WorkflowStateRolledBack,
		WorkflowStatePartiallyRolledBack,
		WorkflowStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo 检查是否可以转换到目标状态（对外导出）
func (s WorkflowState) CanTransitionTo(target WorkflowState) bool {
	switch s {
	case WorkflowStateActive:
		// Active可以完成、失败、被取消，或在回滚补偿失败时进入部分回滚终态
		return target == WorkflowStateCompleted ||
			target == WorkflowStateFailed ||
			target == WorkflowStateCancelled ||
			target == WorkflowStatePartiallyRolledBack
	case WorkflowStateFailed:
		// Failed可以通过回滚恢复为Active，或进入回滚相关终态
		return target == WorkflowStateActive ||
			target == WorkflowStatePartiallyRolledBack ||
			target == WorkflowStateCancelled
	default:
		// 其余均为终态
		return false
	}
}
