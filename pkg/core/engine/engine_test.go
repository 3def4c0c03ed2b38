package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/core/operation"
	"github.com/LENAX/module-engine/pkg/storage"
	"github.com/LENAX/module-engine/pkg/storage/sqlite"
)

// opRecorder 记录操作调用顺序，并允许注入指定步骤的失败
type opRecorder struct {
	mu          sync.Mutex
	executed    []lifecycle.Step
	compensated []lifecycle.Step
	failOn      map[lifecycle.Step]error
	failComp    map[lifecycle.Step]error
}

func newOpRecorder() *opRecorder {
	return &opRecorder{
		failOn:   make(map[lifecycle.Step]error),
		failComp: make(map[lifecycle.Step]error),
	}
}

func (r *opRecorder) registry(t *testing.T) *operation.Registry {
	t.Helper()
	builder := operation.NewRegistryBuilder()
	for _, step := range lifecycle.DefaultSteps() {
		builder.RegisterFunc(step,
			func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
				r.mu.Lock()
				defer r.mu.Unlock()
				if err, ok := r.failOn[s]; ok && err != nil {
					return err
				}
				r.executed = append(r.executed, s)
				return nil
			},
			func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
				r.mu.Lock()
				defer r.mu.Unlock()
				if err, ok := r.failComp[s]; ok && err != nil {
					return err
				}
				r.compensated = append(r.compensated, s)
				return nil
			},
		)
	}
	registry, err := builder.Build()
	require.NoError(t, err)
	return registry
}

func (r *opRecorder) clearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = make(map[lifecycle.Step]error)
}

func newTestEngine(t *testing.T, store storage.Store, recorder *opRecorder) engine.WorkflowEngine {
	t.Helper()
	bus, err := events.NewBus(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	eng, err := engine.NewWorkflowEngine(engine.Options{
		Store:    store,
		Registry: recorder.registry(t),
		Bus:      bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })
	return eng
}

func newTestStore(t *testing.T) (storage.Store, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine.db")
	store, err := sqlite.NewStoreFromDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dsn
}

func TestEngine_HappyPathInstall(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, instance.State)

	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateCompleted, loaded.State)
	assert.Equal(t, 1.0, loaded.Progress)
	assert.Equal(t, lifecycle.DefaultSteps(), recorder.executed)
	for _, s := range loaded.Steps {
		assert.Equal(t, lifecycle.StepStatusSucceeded, s.Status)
	}
	require.NoError(t, loaded.Validate())
}

func TestEngine_DuplicateWorkflowRejected(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(t, store, newOpRecorder())
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "mount-driver", nil, nil)
	require.NoError(t, err)

	_, err = eng.StartWorkflow(ctx, "mount-driver", nil, nil)
	assert.ErrorIs(t, err, engine.ErrDuplicateWorkflow)

	// 完成后同一模块可再次创建
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))
	_, err = eng.StartWorkflow(ctx, "mount-driver", nil, nil)
	assert.NoError(t, err)
}

func TestEngine_StepFailureMarksWorkflowFailed(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	recorder.failOn[lifecycle.StepInstall] = errors.New("disk full: no space left on device")
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateFailed, loaded.State)
	assert.Equal(t, lifecycle.StepStatusFailed, loaded.Steps[2].Status)
	require.NotEmpty(t, loaded.Steps[2].ErrorID)

	record, ok := eng.Classifier().GetRecord(loaded.Steps[2].ErrorID)
	require.True(t, ok)
	assert.Equal(t, failure.CategoryInstallation, record.Category)
	assert.Contains(t, record.RecoveryActions, "cleanup_disk")
}

func TestEngine_FullRollbackReverseOrder(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	recorder.failOn[lifecycle.StepConfigure] = errors.New("config merge conflict")
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	result, err := eng.RollbackToStep(ctx, instance.ID, "")
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Equal(t, lifecycle.WorkflowStateActive, result.FinalState)

	// 失败的当前步骤也要撤销，补偿按反向顺序：Configure -> Install -> Validate -> Download
	expected := []lifecycle.Step{lifecycle.StepConfigure, lifecycle.StepInstall, lifecycle.StepValidate, lifecycle.StepDownload}
	assert.Equal(t, expected, result.Compensated)
	assert.Equal(t, expected, recorder.compensated)

	// 回滚完成后回到起点，状态恢复Active可重新推进
	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, loaded.State)
	assert.Equal(t, 0, loaded.CurrentIndex)
	for _, s := range loaded.Steps {
		assert.Equal(t, lifecycle.StepStatusPending, s.Status)
	}

	recorder.clearFailures()
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))
	loaded, err = eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateCompleted, loaded.State)
}

func TestEngine_PartialRollbackThenRetry(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	recorder.failOn[lifecycle.StepInstall] = errors.New("write failed")
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "mount-driver", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	// 回滚到Validate：状态恢复Active，可从Validate重新推进
	result, err := eng.RollbackToStep(ctx, instance.ID, lifecycle.StepValidate)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, result.FinalState)
	assert.Equal(t, 1, result.TargetIndex)

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, loaded.State)
	assert.Equal(t, 1, loaded.CurrentIndex)
	assert.Equal(t, lifecycle.StepStatusSucceeded, loaded.Steps[0].Status)
	assert.Equal(t, lifecycle.StepStatusPending, loaded.Steps[1].Status)

	recorder.clearFailures()
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	loaded, err = eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateCompleted, loaded.State)
}

func TestEngine_CompensationFailurePartiallyRolledBack(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	recorder.failOn[lifecycle.StepConfigure] = errors.New("config merge conflict")
	recorder.failComp[lifecycle.StepValidate] = errors.New("cleanup failed: permission denied")
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	result, err := eng.RollbackToStep(ctx, instance.ID, "")
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.NotEmpty(t, result.ErrorID)
	assert.Equal(t, lifecycle.WorkflowStatePartiallyRolledBack, result.FinalState)

	// Configure、Install补偿成功后Validate补偿失败
	assert.Equal(t, []lifecycle.Step{lifecycle.StepConfigure, lifecycle.StepInstall}, result.Compensated)

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStatePartiallyRolledBack, loaded.State)
	assert.True(t, loaded.State.IsTerminal())
}

func TestEngine_RollbackActiveWorkflow(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)

	// Active工作流也可回滚；未启动的当前步骤Install无需补偿
	result, err := eng.RollbackToStep(ctx, instance.ID, "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, result.FinalState)
	assert.Equal(t, []lifecycle.Step{lifecycle.StepValidate, lifecycle.StepDownload}, result.Compensated)

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.CurrentIndex)
}

func TestEngine_RollbackRejections(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	recorder.failOn[lifecycle.StepConfigure] = errors.New("config merge conflict")
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	// 目标步骤在当前步骤之后
	_, err = eng.RollbackToStep(ctx, instance.ID, lifecycle.StepEnable)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	// 终态工作流不可回滚
	recorder.clearFailures()
	done, err := eng.StartWorkflow(ctx, "mount-driver", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, done.ID))
	_, err = eng.RollbackToStep(ctx, done.ID, "")
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestEngine_CancelConsumedAtCheckpoint(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)

	// 推进两步后取消
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)

	require.NoError(t, eng.CancelWorkflow(ctx, instance.ID))

	loaded, err := eng.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateCancelled, loaded.State)
	// 已完成步骤的结果保留
	assert.Equal(t, lifecycle.StepStatusSucceeded, loaded.Steps[0].Status)
	assert.Equal(t, lifecycle.StepStatusSucceeded, loaded.Steps[1].Status)
	assert.Equal(t, lifecycle.StepStatusPending, loaded.Steps[2].Status)

	// 终态工作流不可再推进
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestEngine_CancelTerminalWorkflowRejected(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(t, store, newOpRecorder())
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.RunWorkflow(ctx, instance.ID))

	err = eng.CancelWorkflow(ctx, instance.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestEngine_ResumeAfterRestart(t *testing.T) {
	store, dsn := newTestStore(t)
	recorder := newOpRecorder()
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	instance, err := eng.StartWorkflow(ctx, "star-atlas", nil, nil)
	require.NoError(t, err)
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)
	_, err = eng.ExecuteNextStep(ctx, instance.ID)
	require.NoError(t, err)

	// 模拟进程重启：同一数据库上的全新引擎
	store2, err := sqlite.NewStoreFromDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store2.Close() })
	recorder2 := newOpRecorder()
	eng2 := newTestEngine(t, store2, recorder2)

	resumed, err := eng2.ResumeIncompleteWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	loaded, err := eng2.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateActive, loaded.State)
	assert.Equal(t, 2, loaded.CurrentIndex)

	// 重复恢复调用幂等：重启后恢复的模块占位拒绝新工作流
	_, err = eng2.StartWorkflow(ctx, "star-atlas", nil, nil)
	assert.ErrorIs(t, err, engine.ErrDuplicateWorkflow)

	// 从中断点继续推进到完成
	require.NoError(t, eng2.RunWorkflow(ctx, instance.ID))
	loaded, err = eng2.GetWorkflow(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.WorkflowStateCompleted, loaded.State)
	assert.Equal(t, []lifecycle.Step{lifecycle.StepInstall, lifecycle.StepConfigure, lifecycle.StepEnable}, recorder2.executed)
}

func TestEngine_ResumeResetsCrashedRunningStep(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// 直接写入带Running步骤的实例，模拟执行中崩溃的残留状态
	crashed := lifecycle.NewWorkflowInstance("mount-driver", nil, nil)
	crashed.Steps[0].Status = lifecycle.StepStatusSucceeded
	crashed.Steps[1].Status = lifecycle.StepStatusRunning
	crashed.CurrentIndex = 1
	require.NoError(t, store.Save(ctx, crashed))

	eng := newTestEngine(t, store, newOpRecorder())
	resumed, err := eng.ResumeIncompleteWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	loaded, err := eng.GetWorkflow(ctx, crashed.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StepStatusPending, loaded.Steps[1].Status)
	require.NoError(t, loaded.Validate())
}

func TestEngine_UnknownWorkflow(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(t, store, newOpRecorder())
	ctx := context.Background()

	_, err := eng.GetWorkflow(ctx, "no-such-id")
	assert.ErrorIs(t, err, engine.ErrUnknownWorkflow)
	_, err = eng.ExecuteNextStep(ctx, "no-such-id")
	assert.ErrorIs(t, err, engine.ErrUnknownWorkflow)
	err = eng.RunWorkflow(ctx, "no-such-id")
	assert.ErrorIs(t, err, engine.ErrUnknownWorkflow)
}

func TestEngine_ParallelWorkflowsAcrossModules(t *testing.T) {
	store, _ := newTestStore(t)
	recorder := newOpRecorder()
	eng := newTestEngine(t, store, recorder)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		instance, err := eng.StartWorkflow(ctx, fmt.Sprintf("module-%d", i), nil, nil)
		require.NoError(t, err)
		ids[i] = instance.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = eng.RunWorkflow(ctx, ids[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		loaded, err := eng.GetWorkflow(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, lifecycle.WorkflowStateCompleted, loaded.State)
	}
}
