package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
)

const (
	// maxGlobalWorkers 全局最大并发数上限
	maxGlobalWorkers = 1000
	// defaultMaxWorkers 默认并发数
	defaultMaxWorkers = 10
)

// Task 调度任务函数签名（对外导出）
type Task func(ctx context.Context) error

// moduleLock 单个模块的互斥令牌（内部结构）
// 基于容量为1的channel实现，等待方按FIFO顺序排队
type moduleLock struct {
	ch   chan struct{}
	refs int // 持有或排队中的调用方数量，归零时回收
}

// Coordinator 并发协调器（对外导出）
// 持有有界Worker池；保证同一模块同时最多一个活跃任务（模块级串行化），
// 不同模块的任务在池容量内并行执行
type Coordinator struct {
	mu          sync.Mutex
	maxWorkers  int
	workerPool  chan struct{}
	moduleLocks map[string]*moduleLock
	tokens      sync.Map // workflowID -> *CancelToken
	wg          sync.WaitGroup
	closed      bool
	shutdown    chan struct{}
}

// NewCoordinator 创建并发协调器（对外导出）
func NewCoordinator(maxWorkers int) (*Coordinator, error) {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if maxWorkers > maxGlobalWorkers {
		return nil, fmt.Errorf("最大并发数不能超过 %d", maxGlobalWorkers)
	}

	return &Coordinator{
		maxWorkers:  maxWorkers,
		workerPool:  make(chan struct{}, maxWorkers),
		moduleLocks: make(map[string]*moduleLock),
		shutdown:    make(chan struct{}),
	}, nil
}

// MaxWorkers 返回Worker池容量（对外导出）
func (c *Coordinator) MaxWorkers() int {
	return c.maxWorkers
}

// acquireModuleLock 获取模块互斥令牌（内部方法）
func (c *Coordinator) acquireModuleLock(moduleName string) *moduleLock {
	c.mu.Lock()
	lock, exists := c.moduleLocks[moduleName]
	if !exists {
		lock = &moduleLock{ch: make(chan struct{}, 1)}
		c.moduleLocks[moduleName] = lock
	}
	lock.refs++
	c.mu.Unlock()
	return lock
}

// releaseModuleLock 释放模块互斥令牌（内部方法）
func (c *Coordinator) releaseModuleLock(moduleName string, lock *moduleLock) {
	c.mu.Lock()
	lock.refs--
	if lock.refs <= 0 {
		delete(c.moduleLocks, moduleName)
	}
	c.mu.Unlock()
}

// RunExclusive 以模块级互斥方式执行任务（对外导出）
// 先获取模块互斥令牌（同模块调用方排队等待），再占用Worker池槽位执行task，
// 无论task结果如何都会释放令牌和槽位
func (c *Coordinator) RunExclusive(ctx context.Context, moduleName string, task Task) error {
	lock := c.acquireModuleLock(moduleName)
	defer c.releaseModuleLock(moduleName, lock)

	// 排队获取模块互斥令牌
	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.shutdown:
		return fmt.Errorf("协调器已关闭")
	}
	defer func() { <-lock.ch }()

	// 占用Worker池槽位
	select {
	case c.workerPool <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.shutdown:
		return fmt.Errorf("协调器已关闭")
	}
	defer func() { <-c.workerPool }()

	c.wg.Add(1)
	defer c.wg.Done()

	return task(ctx)
}

// Submit 异步提交任务（对外导出）
// 在新goroutine中通过RunExclusive执行，结果通过done回调上报
func (c *Coordinator) Submit(ctx context.Context, moduleName string, task Task, done func(error)) {
	go func() {
		err := c.RunExclusive(ctx, moduleName, task)
		if done != nil {
			done(err)
		}
	}()
}

// RegisterToken 为工作流注册取消令牌（对外导出）
// 已存在时返回现有令牌
func (c *Coordinator) RegisterToken(workflowID string) *CancelToken {
	token := newCancelToken(workflowID)
	actual, _ := c.tokens.LoadOrStore(workflowID, token)
	return actual.(*CancelToken)
}

// Token 获取工作流的取消令牌（对外导出）
func (c *Coordinator) Token(workflowID string) (*CancelToken, bool) {
	v, ok := c.tokens.Load(workflowID)
	if !ok {
		return nil, false
	}
	return v.(*CancelToken), true
}

// CancelWorkflow 触发工作流取消（对外导出）
// 协作式：仅设置标记，由执行方在检查点消费
func (c *Coordinator) CancelWorkflow(workflowID string) bool {
	v, ok := c.tokens.Load(workflowID)
	if !ok {
		return false
	}
	v.(*CancelToken).Cancel()
	log.Printf("工作流取消标记已设置: WorkflowID=%s", workflowID)
	return true
}

// ReleaseToken 移除工作流的取消令牌（对外导出）
// 工作流到达终态后调用
func (c *Coordinator) ReleaseToken(workflowID string) {
	c.tokens.Delete(workflowID)
}

// Shutdown 关闭协调器并等待在途任务完成（对外导出）
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.shutdown)
	c.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		log.Printf("并发协调器已关闭")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待在途任务超时: %w", ctx.Err())
	}
}
