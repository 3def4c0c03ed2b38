package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/executor"
	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/core/operation"
	"github.com/LENAX/module-engine/pkg/storage"
)

var (
	// ErrDuplicateWorkflow 同一模块已存在活跃工作流
	ErrDuplicateWorkflow = errors.New("模块已存在活跃工作流")
	// ErrUnknownWorkflow 工作流不存在
	ErrUnknownWorkflow = errors.New("工作流不存在")
	// ErrInvalidState 工作流状态不允许该操作
	ErrInvalidState = errors.New("工作流状态不允许该操作")
)

// StepResult 单步执行结果（对外导出）
type StepResult struct {
	WorkflowID string               `json:"workflow_id"` // 工作流ID
	Step       lifecycle.Step       `json:"step"`        // 执行的步骤
	StepIndex  int                  `json:"step_index"`  // 步骤索引
	Status     lifecycle.StepStatus `json:"status"`      // 步骤最终状态
	Duration   time.Duration        `json:"duration"`    // 步骤耗时
	ErrorID    string               `json:"error_id"`    // 失败时的错误记录ID
	Completed  bool                 `json:"completed"`   // 工作流是否因此步到达Completed
	Cancelled  bool                 `json:"cancelled"`   // 是否在检查点消费了取消标记
}

// RollbackResult 回滚执行结果（对外导出）
type RollbackResult struct {
	WorkflowID  string                  `json:"workflow_id"`  // 工作流ID
	TargetIndex int                     `json:"target_index"` // 回滚目标索引
	Compensated []lifecycle.Step        `json:"compensated"`  // 按补偿顺序（反向）记录的步骤
	Partial     bool                    `json:"partial"`      // 补偿是否中途失败
	ErrorID     string                  `json:"error_id"`     // 补偿失败时的错误记录ID
	FinalState  lifecycle.WorkflowState `json:"final_state"`  // 回滚后的工作流状态
}

// WorkflowEngine 模块工作流引擎接口（对外导出）
type WorkflowEngine interface {
	// StartWorkflow 为模块创建新工作流（同一模块同时只允许一个活跃工作流）
	StartWorkflow(ctx context.Context, moduleName string, steps []lifecycle.Step, metadata map[string]interface{}) (*lifecycle.WorkflowInstance, error)
	// ExecuteNextStep 推进工作流的下一个步骤（持有模块锁执行）
	ExecuteNextStep(ctx context.Context, workflowID string) (*StepResult, error)
	// RunWorkflow 持续推进工作流直到终态或失败（持有模块锁执行）
	RunWorkflow(ctx context.Context, workflowID string) error
	// RollbackToStep 从当前步骤到目标步骤按反向顺序执行补偿回滚
	// targetStep为空时回滚到索引0；成功后当前索引回到目标，状态恢复Active可重试
	// 补偿中途失败则进入PartiallyRolledBack终态
	RollbackToStep(ctx context.Context, workflowID string, targetStep lifecycle.Step) (*RollbackResult, error)
	// CancelWorkflow 协作式取消工作流（检查点消费标记）
	CancelWorkflow(ctx context.Context, workflowID string) error
	// ResumeIncompleteWorkflows 从持久化存储恢复所有非终态工作流（进程重启后调用）
	ResumeIncompleteWorkflows(ctx context.Context) (int, error)
	// GetWorkflow 按ID查询工作流实例
	GetWorkflow(ctx context.Context, workflowID string) (*lifecycle.WorkflowInstance, error)
	// ListActiveWorkflows 列出所有非终态工作流实例
	ListActiveWorkflows(ctx context.Context) ([]*lifecycle.WorkflowInstance, error)
	// Classifier 返回错误分类器（用于错误历史查询和恢复动作执行）
	Classifier() *failure.Classifier
	// Coordinator 返回共享并发协调器
	// 需要与工作流步骤在同一模块锁下串行化的协作方（如批量直接动作）复用它
	Coordinator() *executor.Coordinator
	// Bus 返回事件总线
	Bus() events.Bus
	// Shutdown 等待在途任务结束后关闭引擎
	Shutdown(ctx context.Context) error
}

// Options 引擎构造参数（对外导出）
type Options struct {
	Store       storage.Store       // 持久化存储（必填）
	Registry    *operation.Registry // 步骤操作注册表（必填）
	Classifier  *failure.Classifier // 错误分类器（为nil时使用默认规则）
	Bus         events.Bus          // 事件总线（必填）
	MaxWorkers  int                 // 全局Worker并发上限
	StepTimeout time.Duration       // 单步骤执行超时
}

// engineImpl 工作流引擎实现（内部实现）
type engineImpl struct {
	store       storage.Store
	registry    *operation.Registry
	classifier  *failure.Classifier
	coordinator *executor.Coordinator
	bus         events.Bus
	stepTimeout time.Duration

	mu             sync.Mutex
	activeByModule map[string]string // moduleName -> workflowID
}

// NewWorkflowEngine 创建工作流引擎（对外导出）
func NewWorkflowEngine(opts Options) (WorkflowEngine, error) {
	if opts.Store == nil {
		return nil, errors.New("Store不能为空")
	}
	if opts.Registry == nil {
		return nil, errors.New("Registry不能为空")
	}
	if opts.Bus == nil {
		return nil, errors.New("Bus不能为空")
	}
	if opts.Classifier == nil {
		opts.Classifier = failure.NewClassifier(failure.DefaultRules(), opts.Store)
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 5 * time.Minute
	}

	coordinator, err := executor.NewCoordinator(opts.MaxWorkers)
	if err != nil {
		return nil, err
	}

	return &engineImpl{
		store:          opts.Store,
		registry:       opts.Registry,
		classifier:     opts.Classifier,
		coordinator:    coordinator,
		bus:            opts.Bus,
		stepTimeout:    opts.StepTimeout,
		activeByModule: make(map[string]string),
	}, nil
}

// StartWorkflow 为模块创建新工作流（实现WorkflowEngine接口）
func (e *engineImpl) StartWorkflow(ctx context.Context, moduleName string, steps []lifecycle.Step, metadata map[string]interface{}) (*lifecycle.WorkflowInstance, error) {
	if moduleName == "" {
		return nil, errors.New("模块名称不能为空")
	}

	e.mu.Lock()
	if existingID, ok := e.activeByModule[moduleName]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: module=%s, workflow=%s", ErrDuplicateWorkflow, moduleName, existingID)
	}
	instance := lifecycle.NewWorkflowInstance(moduleName, steps, metadata)
	e.activeByModule[moduleName] = instance.ID
	e.mu.Unlock()

	if err := e.store.Save(ctx, instance); err != nil {
		e.releaseModule(moduleName, instance.ID)
		return nil, fmt.Errorf("持久化工作流实例失败: %w", err)
	}

	e.coordinator.RegisterToken(instance.ID)
	e.publish(ctx, events.NewEvent(events.EventWorkflowStarted, instance.ID, moduleName, nil))
	log.Printf("✅ 创建工作流成功: workflow=%s, module=%s", instance.ID, moduleName)
	return instance, nil
}

// ExecuteNextStep 推进工作流的下一个步骤（实现WorkflowEngine接口）
func (e *engineImpl) ExecuteNextStep(ctx context.Context, workflowID string) (*StepResult, error) {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, e.wrapNotFound(err, workflowID)
	}

	var result *StepResult
	runErr := e.coordinator.RunExclusive(ctx, instance.ModuleName, func(taskCtx context.Context) error {
		var stepErr error
		result, stepErr = e.executeNextStepLocked(taskCtx, workflowID)
		return stepErr
	})
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// RunWorkflow 持续推进工作流直到终态（实现WorkflowEngine接口）
func (e *engineImpl) RunWorkflow(ctx context.Context, workflowID string) error {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return e.wrapNotFound(err, workflowID)
	}

	return e.coordinator.RunExclusive(ctx, instance.ModuleName, func(taskCtx context.Context) error {
		for {
			result, stepErr := e.executeNextStepLocked(taskCtx, workflowID)
			if stepErr != nil {
				return stepErr
			}
			if result.Cancelled || result.Completed || result.Status == lifecycle.StepStatusFailed {
				return nil
			}
		}
	})
}

// RollbackToStep 反向补偿回滚到目标步骤，成功后工作流恢复Active（实现WorkflowEngine接口）
func (e *engineImpl) RollbackToStep(ctx context.Context, workflowID string, targetStep lifecycle.Step) (*RollbackResult, error) {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, e.wrapNotFound(err, workflowID)
	}

	var result *RollbackResult
	runErr := e.coordinator.RunExclusive(ctx, instance.ModuleName, func(taskCtx context.Context) error {
		var rbErr error
		result, rbErr = e.rollbackLocked(taskCtx, workflowID, targetStep)
		return rbErr
	})
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// CancelWorkflow 协作式取消工作流（实现WorkflowEngine接口）
func (e *engineImpl) CancelWorkflow(ctx context.Context, workflowID string) error {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return e.wrapNotFound(err, workflowID)
	}
	if instance.State.IsTerminal() {
		return fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, instance.State)
	}

	e.coordinator.CancelWorkflow(workflowID)

	instance.CancelFlag = true
	instance.Touch()

	// 无在途步骤时立即进入终态，否则由下一个检查点消费取消标记
	if !instance.HasRunningStep() && instance.State.CanTransitionTo(lifecycle.WorkflowStateCancelled) {
		instance.State = lifecycle.WorkflowStateCancelled
		if err := e.store.Save(ctx, instance); err != nil {
			return fmt.Errorf("持久化取消状态失败: %w", err)
		}
		e.finalize(instance)
		e.publish(ctx, events.NewEvent(events.EventWorkflowCancelled, instance.ID, instance.ModuleName, nil))
		log.Printf("✅ 工作流已取消: workflow=%s, module=%s", instance.ID, instance.ModuleName)
		return nil
	}

	if err := e.store.Save(ctx, instance); err != nil {
		return fmt.Errorf("持久化取消标记失败: %w", err)
	}
	log.Printf("🔄 已发送取消标记，等待检查点消费: workflow=%s", workflowID)
	return nil
}

// ResumeIncompleteWorkflows 恢复所有非终态工作流（实现WorkflowEngine接口）
func (e *engineImpl) ResumeIncompleteWorkflows(ctx context.Context) (int, error) {
	instances, err := e.store.LoadAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("加载非终态工作流失败: %w", err)
	}

	resumed := 0
	for _, instance := range instances {
		// 进程崩溃时可能残留Running步骤，重置为Pending等待重新执行
		changed := false
		for i := range instance.Steps {
			if instance.Steps[i].Status == lifecycle.StepStatusRunning {
				instance.Steps[i].Status = lifecycle.StepStatusPending
				instance.Steps[i].StartedAt = nil
				changed = true
			}
		}
		if changed {
			instance.Touch()
			if err := e.store.Save(ctx, instance); err != nil {
				log.Printf("⚠️ 恢复工作流 %s 失败: %v", instance.ID, err)
				continue
			}
		}

		e.mu.Lock()
		e.activeByModule[instance.ModuleName] = instance.ID
		e.mu.Unlock()
		e.coordinator.RegisterToken(instance.ID)
		resumed++
		log.Printf("✅ 恢复非终态工作流: workflow=%s, module=%s, state=%s, step_index=%d",
			instance.ID, instance.ModuleName, instance.State, instance.CurrentIndex)
	}
	return resumed, nil
}

// GetWorkflow 按ID查询工作流实例（实现WorkflowEngine接口）
func (e *engineImpl) GetWorkflow(ctx context.Context, workflowID string) (*lifecycle.WorkflowInstance, error) {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, e.wrapNotFound(err, workflowID)
	}
	return instance, nil
}

// ListActiveWorkflows 列出所有非终态工作流实例（实现WorkflowEngine接口）
func (e *engineImpl) ListActiveWorkflows(ctx context.Context) ([]*lifecycle.WorkflowInstance, error) {
	return e.store.LoadAllActive(ctx)
}

// Classifier 返回错误分类器（实现WorkflowEngine接口）
func (e *engineImpl) Classifier() *failure.Classifier {
	return e.classifier
}

// Coordinator 返回共享并发协调器（实现WorkflowEngine接口）
func (e *engineImpl) Coordinator() *executor.Coordinator {
	return e.coordinator
}

// Bus 返回事件总线（实现WorkflowEngine接口）
func (e *engineImpl) Bus() events.Bus {
	return e.bus
}

// Shutdown 等待在途任务结束后关闭引擎（实现WorkflowEngine接口）
func (e *engineImpl) Shutdown(ctx context.Context) error {
	return e.coordinator.Shutdown(ctx)
}

// releaseModule 释放模块的活跃工作流占位（内部方法）
func (e *engineImpl) releaseModule(moduleName, workflowID string) {
	e.mu.Lock()
	if e.activeByModule[moduleName] == workflowID {
		delete(e.activeByModule, moduleName)
	}
	e.mu.Unlock()
}

// finalize 工作流到达终态后的清理（内部方法）
func (e *engineImpl) finalize(instance *lifecycle.WorkflowInstance) {
	e.releaseModule(instance.ModuleName, instance.ID)
	e.coordinator.ReleaseToken(instance.ID)
}

// publish 发布事件（内部方法，发布失败仅记录日志不中断流程）
func (e *engineImpl) publish(ctx context.Context, event *events.Event) {
	if err := e.bus.Publish(ctx, event); err != nil {
		log.Printf("⚠️ 发布事件失败: type=%s, workflow=%s, err=%v", event.Type, event.WorkflowID, err)
	}
}

// wrapNotFound 将存储层的未找到错误映射为引擎错误（内部方法）
func (e *engineImpl) wrapNotFound(err error, workflowID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return err
}

// 确保实现接口
var _ WorkflowEngine = (*engineImpl)(nil)
