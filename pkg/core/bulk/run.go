package bulk

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind 批量操作类型枚举（对外导出）
type Kind string

const (
	// KindInstall 批量安装（完整生命周期工作流）
	KindInstall Kind = "install"
	// KindUpdate 批量更新（完整生命周期工作流）
	KindUpdate Kind = "update"
	// KindEnable 批量启用
	KindEnable Kind = "enable"
	// KindDisable 批量禁用
	KindDisable Kind = "disable"
	// KindValidate 批量校验
	KindValidate Kind = "validate"
	// KindBackup 批量备份
	KindBackup Kind = "backup"
	// KindDelete 批量删除
	KindDelete Kind = "delete"
)

// IsValid 检查操作类型是否有效（对外导出）
func (k Kind) IsValid() bool {
	switch k {
	case KindInstall, KindUpdate, KindEnable, KindDisable, KindValidate, KindBackup, KindDelete:
		return true
	default:
		return false
	}
}

// OutcomeStatus 单模块处理结果状态枚举（对外导出）
type OutcomeStatus string

const (
	// OutcomePending 待处理
	OutcomePending OutcomeStatus = "Pending"
	// OutcomeRunning 处理中
	OutcomeRunning OutcomeStatus = "Running"
	// OutcomeSucceeded 处理成功
	OutcomeSucceeded OutcomeStatus = "Succeeded"
	// OutcomeFailed 处理失败
	OutcomeFailed OutcomeStatus = "Failed"
	// OutcomeSkipped 已跳过（未知模块、重复工作流或取消）
	OutcomeSkipped OutcomeStatus = "Skipped"
)

// ModuleOutcome 单模块处理结果（对外导出）
type ModuleOutcome struct {
	ModuleName string        `json:"module_name"`           // 模块名称
	Status     OutcomeStatus `json:"status"`                // 处理结果状态
	WorkflowID string        `json:"workflow_id,omitempty"` // 关联工作流ID（工作流类操作）
	ErrorID    string        `json:"error_id,omitempty"`    // 失败时的错误记录ID
	Message    string        `json:"message,omitempty"`     // 失败或跳过原因
}

// RunState 批量操作整体状态枚举（对外导出）
type RunState string

const (
	// RunStateRunning 执行中
	RunStateRunning RunState = "Running"
	// RunStateCompleted 已完成（部分失败也视为完成）
	RunStateCompleted RunState = "Completed"
	// RunStateCancelled 已取消
	RunStateCancelled RunState = "Cancelled"
)

// Run 一次批量操作的运行状态（对外导出）
// 计数不变量：Succeeded + Failed + Skipped == 已处理模块数
type Run struct {
	ID        string    // 批量操作ID（UUID）
	Kind      Kind      // 操作类型
	Modules   []string  // 请求顺序的模块列表
	StartTime time.Time // 开始时间

	mu        sync.RWMutex
	state     RunState
	endTime   time.Time
	outcomes  map[string]*ModuleOutcome
	succeeded int
	failed    int
	skipped   int
	cancelled bool
	done      chan struct{}
}

// newRun 创建批量操作运行实例（内部方法）
func newRun(kind Kind, modules []string) *Run {
	outcomes := make(map[string]*ModuleOutcome, len(modules))
	for _, name := range modules {
		outcomes[name] = &ModuleOutcome{ModuleName: name, Status: OutcomePending}
	}
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Modules:   modules,
		StartTime: time.Now(),
		state:     RunStateRunning,
		outcomes:  outcomes,
		done:      make(chan struct{}),
	}
}

// Result 批量操作结果快照（对外导出）
type Result struct {
	RunID     string           `json:"run_id"`     // 批量操作ID
	Kind      Kind             `json:"kind"`       // 操作类型
	State     RunState         `json:"state"`      // 整体状态
	Total     int              `json:"total"`      // 请求模块总数
	Succeeded int              `json:"succeeded"`  // 成功数
	Failed    int              `json:"failed"`     // 失败数
	Skipped   int              `json:"skipped"`    // 跳过数
	Outcomes  []*ModuleOutcome `json:"outcomes"`   // 按请求顺序的单模块结果
	StartTime time.Time        `json:"start_time"` // 开始时间
	EndTime   time.Time        `json:"end_time"`   // 结束时间（未结束时为零值）
}

// Snapshot 返回当前结果快照（对外导出）
func (r *Run) Snapshot() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outcomes := make([]*ModuleOutcome, 0, len(r.Modules))
	for _, name := range r.Modules {
		outcome := *r.outcomes[name]
		outcomes = append(outcomes, &outcome)
	}
	return &Result{
		RunID:     r.ID,
		Kind:      r.Kind,
		State:     r.state,
		Total:     len(r.Modules),
		Succeeded: r.succeeded,
		Failed:    r.failed,
		Skipped:   r.skipped,
		Outcomes:  outcomes,
		StartTime: r.StartTime,
		EndTime:   r.endTime,
	}
}

// State 返回整体状态（对外导出）
func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Done 返回结束通知channel（对外导出）
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait 阻塞直到批量操作结束（对外导出）
func (r *Run) Wait() *Result {
	<-r.done
	return r.Snapshot()
}

// markRunning 标记模块开始处理（内部方法）
// 取消后不再启动新模块，返回false
func (r *Run) markRunning(moduleName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		outcome := r.outcomes[moduleName]
		outcome.Status = OutcomeSkipped
		outcome.Message = "批量操作已取消"
		r.skipped++
		return false
	}
	r.outcomes[moduleName].Status = OutcomeRunning
	return true
}

// record 记录模块处理结果（内部方法）
func (r *Run) record(moduleName string, status OutcomeStatus, workflowID, errorID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := r.outcomes[moduleName]
	outcome.Status = status
	outcome.WorkflowID = workflowID
	outcome.ErrorID = errorID
	outcome.Message = message

	switch status {
	case OutcomeSucceeded:
		r.succeeded++
	case OutcomeFailed:
		r.failed++
	case OutcomeSkipped:
		r.skipped++
	}
}

// requestCancel 请求取消，未启动的模块将被跳过（内部方法）
func (r *Run) requestCancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunStateRunning {
		return false
	}
	r.cancelled = true
	return true
}

// finish 标记批量操作结束（内部方法）
func (r *Run) finish() {
	r.mu.Lock()
	if r.cancelled {
		r.state = RunStateCancelled
	} else {
		r.state = RunStateCompleted
	}
	r.endTime = time.Now()
	r.mu.Unlock()
	close(r.done)
}
