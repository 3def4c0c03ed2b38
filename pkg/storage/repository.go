package storage

import (
	"context"
	"errors"
	"time"

	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// WorkflowInstanceRepository 工作流实例持久化契约（对外导出）
// 引擎在每次状态转换后调用Save；按工作流ID事务性读写，
// 不要求跨工作流事务
type WorkflowInstanceRepository interface {
	// Save 保存或更新工作流实例
	Save(ctx context.Context, instance *lifecycle.WorkflowInstance) error
	// Load 按ID加载工作流实例，不存在时返回ErrNotFound
	Load(ctx context.Context, workflowID string) (*lifecycle.WorkflowInstance, error)
	// LoadAllActive 加载所有非终态的工作流实例（用于进程重启后恢复）
	LoadAllActive(ctx context.Context) ([]*lifecycle.WorkflowInstance, error)
	// Delete 删除工作流实例
	Delete(ctx context.Context, workflowID string) error
	// DeleteTerminalBefore 删除早于指定时间且处于终态的实例，返回删除数量
	// 由保留策略调用，绝不删除在途工作流
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int, error)
}

// ErrorRecordRepository 错误记录持久化契约（对外导出）
type ErrorRecordRepository interface {
	// SaveErrorRecord 保存或更新错误记录
	SaveErrorRecord(ctx context.Context, record *failure.ErrorRecord) error
	// LoadErrorRecords 按工作流ID加载错误记录
	LoadErrorRecords(ctx context.Context, workflowID string) ([]*failure.ErrorRecord, error)
	// DeleteErrorRecordsBefore 删除早于指定时间的错误记录
	// onlyResolved为true时仅删除已解决的记录
	DeleteErrorRecordsBefore(ctx context.Context, before time.Time, onlyResolved bool) (int, error)
}

// Store 聚合存储契约（对外导出）
// 工作流实例与错误记录的统一持久化入口
type Store interface {
	WorkflowInstanceRepository
	ErrorRecordRepository
	// Close 关闭底层数据库连接
	Close() error
}
