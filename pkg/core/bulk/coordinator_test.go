package bulk_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/core/bulk"
	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/core/operation"
	"github.com/LENAX/module-engine/pkg/storage/sqlite"
)

// mapCatalog 基于集合的模块目录
type mapCatalog map[string]bool

func (c mapCatalog) HasModule(name string) bool { return c[name] }

// failSet 指定模块在Install步骤失败
type failSet struct {
	mu      sync.Mutex
	modules map[string]error
}

func (f *failSet) errorFor(moduleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modules[moduleName]
}

func newBulkFixture(t *testing.T, catalog mapCatalog, failures *failSet) (bulk.Coordinator, engine.WorkflowEngine, events.Bus) {
	t.Helper()
	if failures == nil {
		failures = &failSet{modules: map[string]error{}}
	}

	store, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "bulk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	builder := operation.NewRegistryBuilder()
	noop := func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
		return nil
	}
	for _, step := range lifecycle.DefaultSteps() {
		if step == lifecycle.StepInstall {
			builder.RegisterFunc(step,
				func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
					return failures.errorFor(moduleName)
				}, noop)
			continue
		}
		builder.RegisterFunc(step, noop, noop)
	}
	registry, err := builder.Build()
	require.NoError(t, err)

	bus, err := events.NewBus(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	eng, err := engine.NewWorkflowEngine(engine.Options{
		Store:    store,
		Registry: registry,
		Bus:      bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	coordinator, err := bulk.NewCoordinator(eng, catalog, bus, 2)
	require.NoError(t, err)
	return coordinator, eng, bus
}

func TestBulk_InstallPartialFailureAggregation(t *testing.T) {
	catalog := mapCatalog{"module-a": true, "module-c": true}
	failures := &failSet{modules: map[string]error{
		"module-c": errors.New("disk full: no space left on device"),
	}}
	coordinator, _, _ := newBulkFixture(t, catalog, failures)

	result, err := coordinator.Run(context.Background(), bulk.KindInstall,
		[]string{"module-a", "module-b", "module-c"})
	require.NoError(t, err)

	assert.Equal(t, bulk.RunStateCompleted, result.State)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	// 计数不变量
	assert.Equal(t, result.Total, result.Succeeded+result.Failed+result.Skipped)

	byName := map[string]*bulk.ModuleOutcome{}
	for _, outcome := range result.Outcomes {
		byName[outcome.ModuleName] = outcome
	}
	assert.Equal(t, bulk.OutcomeSucceeded, byName["module-a"].Status)
	assert.NotEmpty(t, byName["module-a"].WorkflowID)
	assert.Equal(t, bulk.OutcomeSkipped, byName["module-b"].Status)
	assert.Equal(t, bulk.OutcomeFailed, byName["module-c"].Status)
	assert.NotEmpty(t, byName["module-c"].ErrorID)
}

func TestBulk_ActionKind(t *testing.T) {
	catalog := mapCatalog{"module-a": true, "module-b": true}
	coordinator, _, _ := newBulkFixture(t, catalog, nil)

	var mu sync.Mutex
	enabled := []string{}
	require.NoError(t, coordinator.RegisterAction(bulk.KindEnable,
		func(ctx context.Context, moduleName string) error {
			mu.Lock()
			defer mu.Unlock()
			enabled = append(enabled, moduleName)
			return nil
		}))

	result, err := coordinator.Run(context.Background(), bulk.KindEnable, []string{"module-a", "module-b"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	mu.Lock()
	assert.Len(t, enabled, 2)
	mu.Unlock()
}

func TestBulk_UnregisteredActionKindRejected(t *testing.T) {
	coordinator, _, _ := newBulkFixture(t, mapCatalog{"module-a": true}, nil)

	_, err := coordinator.Run(context.Background(), bulk.KindBackup, []string{"module-a"})
	assert.ErrorIs(t, err, bulk.ErrUnknownKind)
}

func TestBulk_EmptyModuleListRejected(t *testing.T) {
	coordinator, _, _ := newBulkFixture(t, mapCatalog{}, nil)

	_, err := coordinator.Run(context.Background(), bulk.KindInstall, nil)
	assert.ErrorIs(t, err, bulk.ErrEmptyModuleList)
}

func TestBulk_WorkflowActionRegistrationRejected(t *testing.T) {
	coordinator, _, _ := newBulkFixture(t, mapCatalog{}, nil)

	err := coordinator.RegisterAction(bulk.KindInstall,
		func(ctx context.Context, moduleName string) error { return nil })
	assert.Error(t, err)
}

func TestBulk_CancelSkipsUnstartedModules(t *testing.T) {
	catalog := mapCatalog{"module-a": true, "module-b": true, "module-c": true, "module-d": true}
	coordinator, _, _ := newBulkFixture(t, catalog, nil)

	release := make(chan struct{})
	started := make(chan string, 4)
	require.NoError(t, coordinator.RegisterAction(bulk.KindDisable,
		func(ctx context.Context, moduleName string) error {
			started <- moduleName
			<-release
			return nil
		}))

	run, err := coordinator.Start(context.Background(), bulk.KindDisable,
		[]string{"module-a", "module-b", "module-c", "module-d"})
	require.NoError(t, err)

	// 等前两个模块（并发上限2）进入执行，再取消
	<-started
	<-started
	require.NoError(t, coordinator.Cancel(run.ID))
	close(release)

	result := run.Wait()
	assert.Equal(t, bulk.RunStateCancelled, result.State)
	assert.Equal(t, 2, result.Succeeded, "在途模块不中断")
	assert.Equal(t, 2, result.Skipped, "未启动模块被跳过")
	assert.Equal(t, 0, result.Failed)

	// 结束后的重复取消被拒绝
	assert.Error(t, coordinator.Cancel(run.ID))
}

func TestBulk_ProgressEventsPublished(t *testing.T) {
	catalog := mapCatalog{"module-a": true, "module-b": true}
	coordinator, _, bus := newBulkFixture(t, catalog, nil)

	var mu sync.Mutex
	progress := 0
	completed := make(chan struct{})
	_, err := bus.Subscribe(events.EventBulkProgress, func(event *events.Event) error {
		mu.Lock()
		progress++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(events.EventBulkCompleted, func(event *events.Event) error {
		close(completed)
		return nil
	})
	require.NoError(t, err)

	_, err = coordinator.Run(context.Background(), bulk.KindInstall, []string{"module-a", "module-b"})
	require.NoError(t, err)

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("未收到批量操作完成事件")
	}
	mu.Lock()
	assert.GreaterOrEqual(t, progress, 1)
	mu.Unlock()
}

func TestBulk_ActionSerializesWithWorkflowOnSameModule(t *testing.T) {
	store, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "bulk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// 任一时刻同一模块只允许一个临界区占用者，否则记录重叠
	var active, overlap int32
	enterCritical := func() {
		if !atomic.CompareAndSwapInt32(&active, 0, 1) {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.StoreInt32(&active, 0)
	}

	builder := operation.NewRegistryBuilder()
	noop := func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
		return nil
	}
	for _, step := range lifecycle.DefaultSteps() {
		builder.RegisterFunc(step,
			func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
				enterCritical()
				return nil
			}, noop)
	}
	registry, err := builder.Build()
	require.NoError(t, err)

	bus, err := events.NewBus(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	eng, err := engine.NewWorkflowEngine(engine.Options{
		Store:    store,
		Registry: registry,
		Bus:      bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	coordinator, err := bulk.NewCoordinator(eng, mapCatalog{"module-a": true}, bus, 2)
	require.NoError(t, err)
	require.NoError(t, coordinator.RegisterAction(bulk.KindEnable,
		func(ctx context.Context, moduleName string) error {
			enterCritical()
			return nil
		}))

	ctx := context.Background()
	instance, err := eng.StartWorkflow(ctx, "module-a", nil, nil)
	require.NoError(t, err)

	// 同一模块的工作流推进与批量直接动作并发发起，必须在模块锁下串行执行
	var wg sync.WaitGroup
	wg.Add(2)
	var runErr error
	var bulkResult *bulk.Result
	var bulkErr error
	go func() {
		defer wg.Done()
		runErr = eng.RunWorkflow(ctx, instance.ID)
	}()
	go func() {
		defer wg.Done()
		bulkResult, bulkErr = coordinator.Run(ctx, bulk.KindEnable, []string{"module-a"})
	}()
	wg.Wait()

	require.NoError(t, runErr)
	require.NoError(t, bulkErr)
	assert.Equal(t, 1, bulkResult.Succeeded)
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlap), "同一模块的操作不应并发执行")
}

func TestBulk_GetResultUnknownRun(t *testing.T) {
	coordinator, _, _ := newBulkFixture(t, mapCatalog{}, nil)

	_, err := coordinator.GetResult("no-such-run")
	assert.ErrorIs(t, err, bulk.ErrUnknownRun)
}

func TestBulk_DuplicateModulesDeduplicated(t *testing.T) {
	catalog := mapCatalog{"module-a": true}
	coordinator, _, _ := newBulkFixture(t, catalog, nil)

	result, err := coordinator.Run(context.Background(), bulk.KindInstall,
		[]string{"module-a", "module-a", "module-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Succeeded)
}
