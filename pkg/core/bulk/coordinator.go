package bulk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/module-engine/pkg/core/cache"
	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/executor"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

var (
	// ErrEmptyModuleList 模块列表为空
	ErrEmptyModuleList = errors.New("模块列表不能为空")
	// ErrUnknownKind 不支持的批量操作类型
	ErrUnknownKind = errors.New("不支持的批量操作类型")
	// ErrUnknownRun 批量操作不存在
	ErrUnknownRun = errors.New("批量操作不存在")
)

// ModuleCatalog 模块目录契约（对外导出）
// 由调用方提供已知模块的查询能力
type ModuleCatalog interface {
	// HasModule 检查模块是否在目录中
	HasModule(moduleName string) bool
}

// ActionFunc 直接动作函数类型（对外导出）
// 用于无需完整生命周期工作流的操作（启用、禁用、校验、备份、删除）
type ActionFunc func(ctx context.Context, moduleName string) error

// Coordinator 批量操作协调器接口（对外导出）
type Coordinator interface {
	// RegisterAction 注册操作类型的直接动作函数
	RegisterAction(kind Kind, fn ActionFunc) error
	// Start 启动批量操作（异步，立即返回Run句柄）
	Start(ctx context.Context, kind Kind, modules []string) (*Run, error)
	// Run 执行批量操作并阻塞至结束
	Run(ctx context.Context, kind Kind, modules []string) (*Result, error)
	// Cancel 取消批量操作（未启动的模块跳过，在途模块不中断）
	Cancel(runID string) error
	// GetResult 查询批量操作结果快照
	GetResult(runID string) (*Result, error)
}

// coordinatorImpl 批量操作协调器实现（内部实现）
type coordinatorImpl struct {
	engine         engine.WorkflowEngine
	catalog        ModuleCatalog
	bus            events.Bus
	pool           *executor.Coordinator // 引擎的共享并发协调器，保证模块级串行化
	maxConcurrency int                   // 批量派发上限，防止单次批量占满整个Worker池

	mu      sync.RWMutex
	actions map[Kind]ActionFunc
	runs    map[string]*Run

	// 已结束的批量操作结果保留在缓存中供查询，避免runs无限增长
	results   cache.ResultCache[*Result]
	resultTTL time.Duration
}

// resultRetention 已结束批量操作结果的默认保留时长
const resultRetention = 1 * time.Hour

// NewCoordinator 创建批量操作协调器（对外导出）
func NewCoordinator(eng engine.WorkflowEngine, catalog ModuleCatalog, bus events.Bus, maxConcurrency int) (Coordinator, error) {
	if eng == nil {
		return nil, errors.New("WorkflowEngine不能为空")
	}
	if catalog == nil {
		return nil, errors.New("ModuleCatalog不能为空")
	}
	if bus == nil {
		return nil, errors.New("Bus不能为空")
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &coordinatorImpl{
		engine:         eng,
		catalog:        catalog,
		bus:            bus,
		pool:           eng.Coordinator(),
		maxConcurrency: maxConcurrency,
		actions:        make(map[Kind]ActionFunc),
		runs:           make(map[string]*Run),
		results:        cache.NewMemoryResultCache[*Result](),
		resultTTL:      resultRetention,
	}, nil
}

// workflowKind 判断操作类型是否委托给完整生命周期工作流（内部方法）
func workflowKind(kind Kind) bool {
	return kind == KindInstall || kind == KindUpdate
}

// RegisterAction 注册直接动作函数（实现Coordinator接口）
func (c *coordinatorImpl) RegisterAction(kind Kind, fn ActionFunc) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if workflowKind(kind) {
		return fmt.Errorf("操作类型 %s 委托给生命周期工作流，无需注册动作函数", kind)
	}
	if fn == nil {
		return errors.New("动作函数不能为空")
	}
	c.mu.Lock()
	c.actions[kind] = fn
	c.mu.Unlock()
	return nil
}

// Start 启动批量操作（实现Coordinator接口）
func (c *coordinatorImpl) Start(ctx context.Context, kind Kind, modules []string) (*Run, error) {
	if len(modules) == 0 {
		return nil, ErrEmptyModuleList
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !workflowKind(kind) {
		c.mu.RLock()
		_, registered := c.actions[kind]
		c.mu.RUnlock()
		if !registered {
			return nil, fmt.Errorf("%w: %s 未注册动作函数", ErrUnknownKind, kind)
		}
	}

	// 去重，保留首次出现的顺序
	seen := make(map[string]bool, len(modules))
	deduped := make([]string, 0, len(modules))
	for _, name := range modules {
		if !seen[name] {
			seen[name] = true
			deduped = append(deduped, name)
		}
	}

	run := newRun(kind, deduped)
	c.mu.Lock()
	c.runs[run.ID] = run
	c.mu.Unlock()

	log.Printf("🔄 启动批量操作: run=%s, kind=%s, modules=%d", run.ID, kind, len(deduped))
	go c.execute(ctx, run)
	return run, nil
}

// Run 执行批量操作并阻塞至结束（实现Coordinator接口）
func (c *coordinatorImpl) Run(ctx context.Context, kind Kind, modules []string) (*Result, error) {
	run, err := c.Start(ctx, kind, modules)
	if err != nil {
		return nil, err
	}
	return run.Wait(), nil
}

// Cancel 取消批量操作（实现Coordinator接口）
func (c *coordinatorImpl) Cancel(runID string) error {
	c.mu.RLock()
	run, ok := c.runs[runID]
	c.mu.RUnlock()
	if !ok {
		if _, finished := c.results.Get(runID); finished {
			return fmt.Errorf("批量操作 %s 已结束，无法取消", runID)
		}
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if !run.requestCancel() {
		return fmt.Errorf("批量操作 %s 已结束，无法取消", runID)
	}
	log.Printf("🔄 批量操作取消请求已受理: run=%s", runID)
	return nil
}

// GetResult 查询批量操作结果快照（实现Coordinator接口）
func (c *coordinatorImpl) GetResult(runID string) (*Result, error) {
	c.mu.RLock()
	run, ok := c.runs[runID]
	c.mu.RUnlock()
	if ok {
		return run.Snapshot(), nil
	}
	if result, found := c.results.Get(runID); found {
		return result, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
}

// execute 处理所有模块（内部方法）
// sem限制同时派发的模块数，实际执行占用引擎的共享Worker池槽位
func (c *coordinatorImpl) execute(ctx context.Context, run *Run) {
	sem := make(chan struct{}, c.maxConcurrency)
	var wg sync.WaitGroup

	for _, moduleName := range run.Modules {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processModule(ctx, run, name)
			c.publishProgress(ctx, run, events.EventBulkProgress)
		}(moduleName)
	}

	wg.Wait()
	run.finish()
	c.publishProgress(ctx, run, events.EventBulkCompleted)

	// 结果移入缓存，活跃表只保留进行中的批量操作
	result := run.Snapshot()
	c.results.Set(run.ID, result, c.resultTTL)
	c.mu.Lock()
	delete(c.runs, run.ID)
	c.mu.Unlock()

	log.Printf("✅ 批量操作结束: run=%s, kind=%s, state=%s, succeeded=%d, failed=%d, skipped=%d",
		run.ID, run.Kind, result.State, result.Succeeded, result.Failed, result.Skipped)
}

// processModule 处理单个模块（内部方法）
// 单模块失败只记录结果，不中断其余模块
func (c *coordinatorImpl) processModule(ctx context.Context, run *Run, moduleName string) {
	if !c.catalog.HasModule(moduleName) {
		run.record(moduleName, OutcomeSkipped, "", "", "未知模块")
		return
	}
	if !run.markRunning(moduleName) {
		return
	}

	if workflowKind(run.Kind) {
		c.runWorkflow(ctx, run, moduleName)
		return
	}
	c.runAction(ctx, run, moduleName)
}

// runWorkflow 通过生命周期工作流处理模块（内部方法）
func (c *coordinatorImpl) runWorkflow(ctx context.Context, run *Run, moduleName string) {
	metadata := map[string]interface{}{
		"bulk_run_id": run.ID,
		"bulk_kind":   string(run.Kind),
	}
	instance, err := c.engine.StartWorkflow(ctx, moduleName, nil, metadata)
	if err != nil {
		if errors.Is(err, engine.ErrDuplicateWorkflow) {
			run.record(moduleName, OutcomeSkipped, "", "", "模块已存在活跃工作流")
			return
		}
		run.record(moduleName, OutcomeFailed, "", "", err.Error())
		return
	}

	if err := c.engine.RunWorkflow(ctx, instance.ID); err != nil {
		run.record(moduleName, OutcomeFailed, instance.ID, "", err.Error())
		return
	}

	final, err := c.engine.GetWorkflow(ctx, instance.ID)
	if err != nil {
		run.record(moduleName, OutcomeFailed, instance.ID, "", err.Error())
		return
	}

	switch final.State {
	case lifecycle.WorkflowStateCompleted:
		run.record(moduleName, OutcomeSucceeded, instance.ID, "", "")
	case lifecycle.WorkflowStateCancelled:
		run.record(moduleName, OutcomeSkipped, instance.ID, "", "工作流已取消")
	default:
		errorID := ""
		if len(final.ErrorIDs) > 0 {
			errorID = final.ErrorIDs[len(final.ErrorIDs)-1]
		}
		run.record(moduleName, OutcomeFailed, instance.ID, errorID, fmt.Sprintf("工作流状态 %s", final.State))
	}
}

// runAction 通过直接动作函数处理模块（内部方法）
// 动作在共享协调器的模块锁下执行，与该模块的工作流步骤串行化
func (c *coordinatorImpl) runAction(ctx context.Context, run *Run, moduleName string) {
	c.mu.RLock()
	fn := c.actions[run.Kind]
	c.mu.RUnlock()

	err := c.pool.RunExclusive(ctx, moduleName, func(taskCtx context.Context) error {
		return fn(taskCtx, moduleName)
	})
	if err != nil {
		run.record(moduleName, OutcomeFailed, "", "", err.Error())
		return
	}
	run.record(moduleName, OutcomeSucceeded, "", "", "")
}

// publishProgress 发布批量操作进度事件（内部方法）
func (c *coordinatorImpl) publishProgress(ctx context.Context, run *Run, eventType events.EventType) {
	snapshot := run.Snapshot()
	event := events.NewBulkEvent(eventType, run.ID, &events.BulkProgressPayload{
		Kind:      string(run.Kind),
		Succeeded: snapshot.Succeeded,
		Failed:    snapshot.Failed,
		Skipped:   snapshot.Skipped,
		Total:     snapshot.Total,
	})
	if err := c.bus.Publish(ctx, event); err != nil {
		log.Printf("⚠️ 发布批量操作事件失败: run=%s, type=%s, err=%v", run.ID, eventType, err)
	}
}

// 确保实现接口
var _ Coordinator = (*coordinatorImpl)(nil)
