package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSteps_Order(t *testing.T) {
	// 验证标准步骤序列的顺序固定
	steps := DefaultSteps()
	require.Len(t, steps, 5)
	assert.Equal(t, StepDownload, steps[0])
	assert.Equal(t, StepValidate, steps[1])
	assert.Equal(t, StepInstall, steps[2])
	assert.Equal(t, StepConfigure, steps[3])
	assert.Equal(t, StepEnable, steps[4])
}

func TestWorkflowState_IsTerminal(t *testing.T) {
	assert.False(t, WorkflowStateActive.IsTerminal())
	// Failed不是终态，可通过回滚恢复
	assert.False(t, WorkflowStateFailed.IsTerminal())
	assert.True(t, WorkflowStateCompleted.IsTerminal())
	assert.True(t, WorkflowStateRolledBack.IsTerminal())
	assert.True(t, WorkflowStatePartiallyRolledBack.IsTerminal())
	assert.True(t, WorkflowStateCancelled.IsTerminal())
}

func TestWorkflowState_CanTransitionTo(t *testing.T) {
	assert.True(t, WorkflowStateActive.CanTransitionTo(WorkflowStateCompleted))
	assert.True(t, WorkflowStateActive.CanTransitionTo(WorkflowStateFailed))
	assert.True(t, WorkflowStateActive.CanTransitionTo(WorkflowStateCancelled))
	// Active工作流回滚时补偿失败进入部分回滚终态
	assert.True(t, WorkflowStateActive.CanTransitionTo(WorkflowStatePartiallyRolledBack))
	assert.False(t, WorkflowStateActive.CanTransitionTo(WorkflowStateRolledBack))

	// 失败的工作流可以回到Active（回滚成功）或进入部分回滚终态
	assert.True(t, WorkflowStateFailed.CanTransitionTo(WorkflowStateActive))
	assert.True(t, WorkflowStateFailed.CanTransitionTo(WorkflowStatePartiallyRolledBack))

	// 终态不可再转换
	assert.False(t, WorkflowStateCompleted.CanTransitionTo(WorkflowStateActive))
	assert.False(t, WorkflowStateCancelled.CanTransitionTo(WorkflowStateActive))
}

func TestNewWorkflowInstance(t *testing.T) {
	instance := NewWorkflowInstance("stellarium", nil, map[string]interface{}{
		"origin": "cli",
	})

	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, "stellarium", instance.ModuleName)
	assert.Equal(t, WorkflowStateActive, instance.State)
	assert.Equal(t, 0, instance.CurrentIndex)
	require.Len(t, instance.Steps, 5)
	for _, s := range instance.Steps {
		assert.Equal(t, StepStatusPending, s.Status)
	}
	assert.Equal(t, "cli", instance.Metadata["origin"])
	assert.NotZero(t, instance.CreateTime)
}

func TestWorkflowInstance_CurrentStep(t *testing.T) {
	instance := NewWorkflowInstance("astap", nil, nil)

	step, ok := instance.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, StepDownload, step)

	instance.CurrentIndex = len(instance.Steps)
	_, ok = instance.CurrentStep()
	assert.False(t, ok)
}

func TestWorkflowInstance_UpdateProgress(t *testing.T) {
	instance := NewWorkflowInstance("phd2", nil, nil)

	// 前两步成功，各耗时1秒
	for i := 0; i < 2; i++ {
		instance.Steps[i].Status = StepStatusSucceeded
		instance.Steps[i].Duration = time.Second
	}
	instance.UpdateProgress()

	assert.InDelta(t, 0.4, instance.Progress, 0.001)
	// 平均1秒/步，剩余3步
	assert.Equal(t, 3*time.Second, instance.EstimatedETA)
}

func TestWorkflowInstance_Validate(t *testing.T) {
	instance := NewWorkflowInstance("indi-driver", nil, nil)
	require.NoError(t, instance.Validate())

	// 当前索引左侧存在非终态步骤 -> 不变量被破坏
	instance.CurrentIndex = 2
	instance.Steps[0].Status = StepStatusSucceeded
	err := instance.Validate()
	assert.Error(t, err)

	instance.Steps[1].Status = StepStatusSucceeded
	require.NoError(t, instance.Validate())

	// Completed状态要求所有步骤Succeeded
	instance.State = WorkflowStateCompleted
	err = instance.Validate()
	assert.Error(t, err)
}

func TestWorkflowInstance_HasRunningStep(t *testing.T) {
	instance := NewWorkflowInstance("siril", nil, nil)
	assert.False(t, instance.HasRunningStep())

	instance.Steps[0].Status = StepStatusRunning
	assert.True(t, instance.HasRunningStep())
}
