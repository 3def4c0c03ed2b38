package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepState 单个步骤的执行状态（对外导出）
type StepState struct {
	Step       Step          `json:"step"`                  // 步骤名称
	Status     StepStatus    `json:"status"`                // 步骤状态
	StartedAt  *time.Time    `json:"started_at,omitempty"`  // 开始时间
	FinishedAt *time.Time    `json:"finished_at,omitempty"` // 结束时间
	Duration   time.Duration `json:"duration"`              // 执行耗时（成功或失败后）
	ErrorID    string        `json:"error_id,omitempty"`    // 关联的ErrorRecord ID（失败时）
}

// WorkflowInstance 模块生命周期工作流实例（对外导出）
// 仅由WorkflowEngine持有和变更，每次状态转换后持久化
type WorkflowInstance struct {
	ID           string                 `json:"id"`            // 工作流实例ID（UUID）
	ModuleName   string                 `json:"module_name"`   // 目标模块名称
	Steps        []StepState            `json:"steps"`         // 步骤序列（顺序固定）
	CurrentIndex int                    `json:"current_index"` // 当前步骤索引
	State        WorkflowState          `json:"state"`         // 工作流整体状态
	CreateTime   time.Time              `json:"create_time"`   // 创建时间
	UpdateTime   time.Time              `json:"update_time"`   // 最后更新时间
	Progress     float64                `json:"progress"`      // 进度（0.0 - 1.0）
	EstimatedETA time.Duration          `json:"estimated_eta"` // 预估剩余时间
	Metadata     map[string]interface{} `json:"metadata"`      // 调用方提供的元数据（如请求来源）
	ErrorIDs     []string               `json:"error_ids"`     // 关联的ErrorRecord ID列表
	CancelFlag   bool                   `json:"cancel_flag"`   // 取消标记（协作式，检查点消费）
}

// NewWorkflowInstance 创建工作流实例（对外导出）
// steps为空时使用标准生命周期步骤序列
func NewWorkflowInstance(moduleName string, steps []Step, metadata map[string]interface{}) *WorkflowInstance {
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	stepStates := make([]StepState, len(steps))
	for i, s := range steps {
		stepStates[i] = StepState{Step: s, Status: StepStatusPending}
	}
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	now := time.Now()
	return &WorkflowInstance{
		ID:           uuid.NewString(),
		ModuleName:   moduleName,
		Steps:        stepStates,
		CurrentIndex: 0,
		State:        WorkflowStateActive,
		CreateTime:   now,
		UpdateTime:   now,
		Metadata:     metadata,
	}
}

// CurrentStep 返回当前步骤（对外导出）
// 索引越界时返回false
func (w *WorkflowInstance) CurrentStep() (Step, bool) {
	if w.CurrentIndex < 0 || w.CurrentIndex >= len(w.Steps) {
		return "", false
	}
	return w.Steps[w.CurrentIndex].Step, true
}

// HasRunningStep 检查是否存在执行中的步骤（对外导出）
func (w *WorkflowInstance) HasRunningStep() bool {
	for _, s := range w.Steps {
		if s.Status == StepStatusRunning {
			return true
		}
	}
	return false
}

// StepIndex 根据步骤名称查找索引（对外导出）
func (w *WorkflowInstance) StepIndex(step Step) int {
	for i, s := range w.Steps {
		if s.Step == step {
			return i
		}
	}
	return -1
}

// UpdateProgress 重新计算进度和预估剩余时间（对外导出）
// 进度 = 已成功步骤数 / 总步骤数；ETA = 已完成步骤平均耗时 * 剩余步骤数
func (w *WorkflowInstance) UpdateProgress() {
	total := len(w.Steps)
	if total == 0 {
		w.Progress = 0
		w.EstimatedETA = 0
		return
	}

	succeeded := 0
	var elapsed time.Duration
	for _, s := range w.Steps {
		if s.Status == StepStatusSucceeded {
			succeeded++
			elapsed += s.Duration
		}
	}
	w.Progress = float64(succeeded) / float64(total)

	remaining := total - succeeded
	if succeeded > 0 && remaining > 0 {
		avg := elapsed / time.Duration(succeeded)
		w.EstimatedETA = avg * time.Duration(remaining)
	} else {
		w.EstimatedETA = 0
	}
}

// Touch 更新最后变更时间（对外导出）
func (w *WorkflowInstance) Touch() {
	w.UpdateTime = time.Now()
}

// Validate 校验实例不变量（对外导出）
// 不变量：当前索引左侧步骤均为终态；最多一个步骤处于Running；
// Completed状态要求所有步骤Succeeded
func (w *WorkflowInstance) Validate() error {
	if !w.State.IsValid() {
		return fmt.Errorf("非法工作流状态: %s", w.State)
	}

	running := 0
	for i, s := range w.Steps {
		if s.Status == StepStatusRunning {
			running++
		}
		if i < w.CurrentIndex && !s.Status.IsTerminal() {
			return fmt.Errorf("步骤 %s (索引 %d) 位于当前索引 %d 左侧但非终态: %s",
				s.Step, i, w.CurrentIndex, s.Status)
		}
	}
	if running > 1 {
		return fmt.Errorf("存在 %d 个Running步骤，最多允许1个", running)
	}

	if w.State == WorkflowStateCompleted {
		for _, s := range w.Steps {
			if s.Status != StepStatusSucceeded {
				return fmt.Errorf("Completed工作流存在非Succeeded步骤: %s=%s", s.Step, s.Status)
			}
		}
	}
	return nil
}
