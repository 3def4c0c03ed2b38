package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Classify_DiskFull(t *testing.T) {
	c := NewClassifier(nil, nil)

	record := c.Classify(errors.New("write failed: disk full"), Context{
		WorkflowID: "wf-1",
		ModuleName: "stellarium",
		Step:       "Install",
	})

	assert.Equal(t, CategoryInstallation, record.Category)
	assert.Equal(t, SeverityError, record.Severity)
	assert.Equal(t, "wf-1", record.WorkflowID)
	assert.Equal(t, "Install", record.Step)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.Resolved)
}

func TestClassifier_Classify_RuleOrder(t *testing.T) {
	c := NewClassifier(nil, nil)

	tests := []struct {
		err      error
		category Category
		severity Severity
	}{
		{errors.New("checksum mismatch for package"), CategoryValidation, SeverityError},
		{errors.New("open /opt/modules: permission denied"), CategoryPermission, SeverityError},
		{errors.New("requires module libindi >= 2.0"), CategoryDependency, SeverityError},
		{errors.New("connection refused"), CategoryNetwork, SeverityError},
		{errors.New("download failed: 404"), CategoryDownload, SeverityError},
		{context.DeadlineExceeded, CategoryNetwork, SeverityWarning},
	}

	for _, tt := range tests {
		record := c.Classify(tt.err, Context{})
		assert.Equal(t, tt.category, record.Category, "err=%v", tt.err)
		assert.Equal(t, tt.severity, record.Severity, "err=%v", tt.err)
	}
}

func TestClassifier_Classify_DefaultCategory(t *testing.T) {
	c := NewClassifier(nil, nil)

	// 未命中任何规则 -> other/error
	record := c.Classify(errors.New("something inexplicable"), Context{})
	assert.Equal(t, CategoryOther, record.Category)
	assert.Equal(t, SeverityError, record.Severity)
}

func TestClassifier_RecoveryActions_ByCategory(t *testing.T) {
	c := NewClassifier(nil, nil)

	record := c.Classify(errors.New("download failed: 404"), Context{})
	actions := c.RecoveryActionsFor(record)
	assert.Contains(t, actions, ActionRetryDownload)
	assert.Contains(t, actions, ActionUseMirror)
}

func TestClassifier_SkipValidation_RequiresUnsafeMetadata(t *testing.T) {
	c := NewClassifier(nil, nil)

	// 元数据未允许不安全操作 -> 不提供skip_validation
	record := c.Classify(errors.New("checksum mismatch"), Context{})
	assert.NotContains(t, record.RecoveryActions, ActionSkipValidation)

	// 显式允许后提供
	record = c.Classify(errors.New("checksum mismatch"), Context{
		Metadata: map[string]interface{}{"allow_unsafe": true},
	})
	assert.Contains(t, record.RecoveryActions, ActionSkipValidation)
}

func TestClassifier_ExecuteRecoveryAction(t *testing.T) {
	c := NewClassifier(nil, nil)
	executed := false
	require.NoError(t, c.RegisterRecoveryAction(&RecoveryAction{
		ID:          ActionRetryDownload,
		Description: "重试下载",
		Handler: func(ctx context.Context, record *ErrorRecord) error {
			executed = true
			return nil
		},
	}))

	record := c.Classify(errors.New("download failed: 404"), Context{})

	result, err := c.ExecuteRecoveryAction(context.Background(), record.ID, ActionRetryDownload)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, executed)
	assert.True(t, record.Resolved)
}

func TestClassifier_ExecuteRecoveryAction_WrongCategory(t *testing.T) {
	c := NewClassifier(nil, nil)

	// Scenario B: installation类错误不提供retry_download
	record := c.Classify(errors.New("disk full"), Context{})
	require.Equal(t, CategoryInstallation, record.Category)

	_, err := c.ExecuteRecoveryAction(context.Background(), record.ID, ActionRetryDownload)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestClassifier_ExecuteRecoveryAction_UnknownError(t *testing.T) {
	c := NewClassifier(nil, nil)

	_, err := c.ExecuteRecoveryAction(context.Background(), "missing-id", ActionRetryDownload)
	assert.ErrorIs(t, err, ErrUnknownError)
}

func TestClassifier_ExecuteRecoveryAction_FailureReported(t *testing.T) {
	c := NewClassifier(nil, nil)
	require.NoError(t, c.RegisterRecoveryAction(&RecoveryAction{
		ID:          ActionRetryInstall,
		Description: "重试安装",
		Handler: func(ctx context.Context, record *ErrorRecord) error {
			return errors.New("still no space")
		},
	}))

	record := c.Classify(errors.New("disk full"), Context{})

	// 底层恢复失败如实上报，不作为程序性错误返回
	result, err := c.ExecuteRecoveryAction(context.Background(), record.ID, ActionRetryInstall)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "still no space", result.Message)
	assert.False(t, record.Resolved)
}

func TestClassifier_GetErrorHistory_Filter(t *testing.T) {
	c := NewClassifier(nil, nil)

	c.Classify(errors.New("disk full"), Context{ModuleName: "a"})
	c.Classify(errors.New("connection refused"), Context{ModuleName: "b"})
	c.Classify(errors.New("disk full"), Context{ModuleName: "a"})

	all := c.GetErrorHistory(HistoryFilter{})
	assert.Len(t, all, 3)

	installs := c.GetErrorHistory(HistoryFilter{Category: CategoryInstallation})
	assert.Len(t, installs, 2)

	moduleA := c.GetErrorHistory(HistoryFilter{ModuleName: "a"})
	assert.Len(t, moduleA, 2)

	limited := c.GetErrorHistory(HistoryFilter{Limit: 1})
	assert.Len(t, limited, 1)
}

func TestClassifier_Prune(t *testing.T) {
	c := NewClassifier(nil, nil)

	for i := 0; i < 3; i++ {
		c.Classify(fmt.Errorf("disk full %d", i), Context{})
	}

	// 全部记录都早于未来时刻
	removed := c.Prune(time.Now().Add(time.Hour), false)
	assert.Equal(t, 3, removed)
	assert.Empty(t, c.GetErrorHistory(HistoryFilter{}))
}

func TestClassifier_Prune_OnlyResolved(t *testing.T) {
	c := NewClassifier(nil, nil)
	require.NoError(t, c.RegisterRecoveryAction(&RecoveryAction{
		ID:          ActionRetryInstall,
		Description: "重试安装",
		Handler:     func(ctx context.Context, record *ErrorRecord) error { return nil },
	}))

	resolved := c.Classify(errors.New("disk full"), Context{})
	c.Classify(errors.New("disk full again"), Context{})

	_, err := c.ExecuteRecoveryAction(context.Background(), resolved.ID, ActionRetryInstall)
	require.NoError(t, err)

	removed := c.Prune(time.Now().Add(time.Hour), true)
	assert.Equal(t, 1, removed)
	assert.Len(t, c.GetErrorHistory(HistoryFilter{}), 1)
}
