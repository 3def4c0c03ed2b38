package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// executeNextStepLocked 执行当前步骤（内部方法，调用方需持有模块锁）
// 每次状态转换后持久化，保证进程崩溃后可从存储恢复
func (e *engineImpl) executeNextStepLocked(ctx context.Context, workflowID string) (*StepResult, error) {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, e.wrapNotFound(err, workflowID)
	}
	if instance.State != lifecycle.WorkflowStateActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInvalidState, instance.State)
	}

	// 检查点：步骤开始前消费取消标记
	if e.cancelRequested(instance) {
		return e.consumeCancel(ctx, instance)
	}

	step, ok := instance.CurrentStep()
	if !ok {
		return nil, fmt.Errorf("%w: 步骤索引越界 %d", ErrInvalidState, instance.CurrentIndex)
	}
	op, ok := e.registry.Get(step)
	if !ok {
		return nil, fmt.Errorf("步骤 %s 未注册操作", step)
	}

	stepIndex := instance.CurrentIndex
	now := time.Now()
	instance.Steps[stepIndex].Status = lifecycle.StepStatusRunning
	instance.Steps[stepIndex].StartedAt = &now
	instance.Touch()
	if err := e.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("持久化步骤启动状态失败: %w", err)
	}

	log.Printf("🔄 执行步骤: workflow=%s, module=%s, step=%s (%d/%d)",
		instance.ID, instance.ModuleName, step, stepIndex+1, len(instance.Steps))

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	execErr := op.Execute(stepCtx, step, instance.ModuleName, instance.Metadata)
	cancel()

	finished := time.Now()
	instance.Steps[stepIndex].FinishedAt = &finished
	instance.Steps[stepIndex].Duration = finished.Sub(now)

	if execErr != nil {
		return e.recordStepFailure(ctx, instance, stepIndex, execErr)
	}

	instance.Steps[stepIndex].Status = lifecycle.StepStatusSucceeded
	instance.CurrentIndex++
	instance.UpdateProgress()
	instance.Touch()

	completed := instance.CurrentIndex >= len(instance.Steps)
	if completed {
		instance.State = lifecycle.WorkflowStateCompleted
	}
	if err := e.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("持久化步骤结果失败: %w", err)
	}

	e.publish(ctx, events.NewEvent(events.EventStepCompleted, instance.ID, instance.ModuleName, &events.StepPayload{
		Step:      string(step),
		StepIndex: stepIndex,
		Progress:  instance.Progress,
		Duration:  instance.Steps[stepIndex].Duration.String(),
	}))

	if completed {
		e.finalize(instance)
		e.publish(ctx, events.NewEvent(events.EventWorkflowCompleted, instance.ID, instance.ModuleName, nil))
		log.Printf("✅ 工作流完成: workflow=%s, module=%s", instance.ID, instance.ModuleName)
	}

	return &StepResult{
		WorkflowID: instance.ID,
		Step:       step,
		StepIndex:  stepIndex,
		Status:     lifecycle.StepStatusSucceeded,
		Duration:   instance.Steps[stepIndex].Duration,
		Completed:  completed,
	}, nil
}

// recordStepFailure 记录步骤失败并转换工作流状态（内部方法）
func (e *engineImpl) recordStepFailure(ctx context.Context, instance *lifecycle.WorkflowInstance, stepIndex int, execErr error) (*StepResult, error) {
	step := instance.Steps[stepIndex].Step
	record := e.classifier.Classify(execErr, failure.Context{
		WorkflowID: instance.ID,
		ModuleName: instance.ModuleName,
		Step:       string(step),
		Metadata:   instance.Metadata,
	})

	instance.Steps[stepIndex].Status = lifecycle.StepStatusFailed
	instance.Steps[stepIndex].ErrorID = record.ID
	instance.ErrorIDs = append(instance.ErrorIDs, record.ID)
	instance.State = lifecycle.WorkflowStateFailed
	instance.Touch()
	if err := e.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("持久化步骤失败状态失败: %w", err)
	}

	e.publish(ctx, events.NewEvent(events.EventStepFailed, instance.ID, instance.ModuleName, &events.StepPayload{
		Step:      string(step),
		StepIndex: stepIndex,
		Progress:  instance.Progress,
		ErrorID:   record.ID,
		Duration:  instance.Steps[stepIndex].Duration.String(),
	}))
	log.Printf("❌ 步骤失败: workflow=%s, module=%s, step=%s, category=%s, error=%v",
		instance.ID, instance.ModuleName, step, record.Category, execErr)

	return &StepResult{
		WorkflowID: instance.ID,
		Step:       step,
		StepIndex:  stepIndex,
		Status:     lifecycle.StepStatusFailed,
		Duration:   instance.Steps[stepIndex].Duration,
		ErrorID:    record.ID,
	}, nil
}

// cancelRequested 检查取消标记（内部方法）
func (e *engineImpl) cancelRequested(instance *lifecycle.WorkflowInstance) bool {
	if instance.CancelFlag {
		return true
	}
	if token, ok := e.coordinator.Token(instance.ID); ok {
		return token.IsCancelled()
	}
	return false
}

// consumeCancel 在检查点消费取消标记（内部方法）
// 已完成步骤的结果保留，当前步骤保持Pending
func (e *engineImpl) consumeCancel(ctx context.Context, instance *lifecycle.WorkflowInstance) (*StepResult, error) {
	instance.CancelFlag = true
	instance.State = lifecycle.WorkflowStateCancelled
	instance.Touch()
	if err := e.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("持久化取消状态失败: %w", err)
	}

	e.finalize(instance)
	e.publish(ctx, events.NewEvent(events.EventWorkflowCancelled, instance.ID, instance.ModuleName, nil))
	log.Printf("✅ 工作流在检查点取消: workflow=%s, module=%s, step_index=%d",
		instance.ID, instance.ModuleName, instance.CurrentIndex)

	step, _ := instance.CurrentStep()
	return &StepResult{
		WorkflowID: instance.ID,
		Step:       step,
		StepIndex:  instance.CurrentIndex,
		Status:     lifecycle.StepStatusPending,
		Cancelled:  true,
	}, nil
}

// rollbackLocked 执行反向补偿回滚（内部方法，调用方需持有模块锁）
func (e *engineImpl) rollbackLocked(ctx context.Context, workflowID string, targetStep lifecycle.Step) (*RollbackResult, error) {
	instance, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, e.wrapNotFound(err, workflowID)
	}
	// 终态工作流的簿记已释放，不可回滚；Active和Failed均可发起回滚
	if instance.State != lifecycle.WorkflowStateActive && instance.State != lifecycle.WorkflowStateFailed {
		return nil, fmt.Errorf("%w: 状态 %s 不可回滚", ErrInvalidState, instance.State)
	}

	targetIndex := 0
	if targetStep != "" {
		targetIndex = instance.StepIndex(targetStep)
		if targetIndex < 0 {
			return nil, fmt.Errorf("%w: 未知步骤 %s", ErrInvalidState, targetStep)
		}
		if targetIndex > instance.CurrentIndex {
			return nil, fmt.Errorf("%w: 回滚目标 %s 在当前步骤之后", ErrInvalidState, targetStep)
		}
	}

	fromIndex := instance.CurrentIndex
	if fromIndex > len(instance.Steps)-1 {
		fromIndex = len(instance.Steps) - 1
	}
	for i := fromIndex; i >= targetIndex; i-- {
		if instance.Steps[i].Status == lifecycle.StepStatusRolledBack {
			return nil, fmt.Errorf("%w: 步骤 %s 已回滚", ErrInvalidState, instance.Steps[i].Step)
		}
	}
	result := &RollbackResult{
		WorkflowID:  instance.ID,
		TargetIndex: targetIndex,
		Compensated: make([]lifecycle.Step, 0),
	}

	log.Printf("🔄 开始回滚: workflow=%s, module=%s, from=%d, target=%d",
		instance.ID, instance.ModuleName, fromIndex, targetIndex)

	// 从当前步骤到目标步骤按反向顺序补偿：执行过的步骤（成功或失败）都需撤销，
	// 未启动的Pending步骤没有可撤销的副作用
	for i := fromIndex; i >= targetIndex; i-- {
		status := instance.Steps[i].Status
		if status != lifecycle.StepStatusSucceeded && status != lifecycle.StepStatusFailed {
			continue
		}
		step := instance.Steps[i].Step
		op, ok := e.registry.Get(step)
		if !ok {
			return nil, fmt.Errorf("步骤 %s 未注册操作", step)
		}

		compCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		compErr := op.Compensate(compCtx, step, instance.ModuleName, instance.Metadata)
		cancel()

		if compErr != nil {
			// 补偿失败：进入PartiallyRolledBack终态，不静默吞掉
			record := e.classifier.Classify(compErr, failure.Context{
				WorkflowID: instance.ID,
				ModuleName: instance.ModuleName,
				Step:       string(step),
				Metadata:   instance.Metadata,
			})
			instance.ErrorIDs = append(instance.ErrorIDs, record.ID)
			instance.State = lifecycle.WorkflowStatePartiallyRolledBack
			instance.Touch()
			if err := e.store.Save(ctx, instance); err != nil {
				return nil, fmt.Errorf("持久化部分回滚状态失败: %w", err)
			}

			result.Partial = true
			result.ErrorID = record.ID
			result.FinalState = instance.State
			e.finalize(instance)
			e.publishRollback(ctx, instance, fromIndex, targetIndex, result.Compensated)
			log.Printf("❌ 补偿失败，工作流进入部分回滚终态: workflow=%s, step=%s, error=%v",
				instance.ID, step, compErr)
			return result, nil
		}

		instance.Steps[i].Status = lifecycle.StepStatusRolledBack
		instance.Touch()
		if err := e.store.Save(ctx, instance); err != nil {
			return nil, fmt.Errorf("持久化补偿结果失败: %w", err)
		}
		result.Compensated = append(result.Compensated, step)
	}

	// 回滚成功：回到目标步骤并恢复Active，目标及之后的步骤重置为Pending可重新推进
	for i := targetIndex; i < len(instance.Steps); i++ {
		instance.Steps[i] = lifecycle.StepState{
			Step:   instance.Steps[i].Step,
			Status: lifecycle.StepStatusPending,
		}
	}
	instance.State = lifecycle.WorkflowStateActive
	instance.CurrentIndex = targetIndex
	instance.UpdateProgress()
	instance.Touch()
	if err := e.store.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("持久化回滚结果失败: %w", err)
	}

	result.FinalState = instance.State
	e.publishRollback(ctx, instance, fromIndex, targetIndex, result.Compensated)
	log.Printf("✅ 回滚完成: workflow=%s, module=%s, compensated=%d, final_state=%s",
		instance.ID, instance.ModuleName, len(result.Compensated), instance.State)
	return result, nil
}

// publishRollback 发布回滚事件（内部方法）
func (e *engineImpl) publishRollback(ctx context.Context, instance *lifecycle.WorkflowInstance, fromIndex, targetIndex int, compensated []lifecycle.Step) {
	names := make([]string, len(compensated))
	for i, s := range compensated {
		names[i] = string(s)
	}
	e.publish(ctx, events.NewEvent(events.EventWorkflowRolledBack, instance.ID, instance.ModuleName, &events.RollbackPayload{
		FromIndex:   fromIndex,
		TargetIndex: targetIndex,
		Compensated: names,
	}))
}
