package executor

import (
	"sync"
	"sync/atomic"
)

// CancelToken 协作式取消令牌（对外导出）
// 取消在明确的检查点被消费（每次操作调用之前），不会中断已开始的操作
type CancelToken struct {
	workflowID string
	cancelled  atomic.Bool
	once       sync.Once
	done       chan struct{}
}

// newCancelToken 创建取消令牌（内部方法）
func newCancelToken(workflowID string) *CancelToken {
	return &CancelToken{
		workflowID: workflowID,
		done:       make(chan struct{}),
	}
}

// WorkflowID 返回关联的工作流ID（对外导出）
func (t *CancelToken) WorkflowID() string {
	return t.workflowID
}

// Cancel 触发取消（对外导出）
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
	t.once.Do(func() {
		close(t.done)
	})
}

// IsCancelled 检查是否已取消（对外导出）
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done 返回取消通知通道（对外导出）
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
