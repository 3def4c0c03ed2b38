package events

import (
	"log"
	"sync"
	"sync/atomic"
)

// StreamBuffer 事件流缓冲区（对外导出）
// 在事件总线与慢速消费者（如WebSocket连接）之间提供背压隔离：
// 缓冲区满时丢弃事件并计数，不阻塞总线回调
type StreamBuffer struct {
	events    chan *Event
	capacity  int
	threshold float64
	pressured int32 // atomic，0=正常，1=背压

	// 统计
	totalIn  int64 // atomic，总入队数
	totalOut int64 // atomic，总出队数
	dropped  int64 // atomic，丢弃数

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// BufferStats 缓冲区统计信息（对外导出）
type BufferStats struct {
	Capacity int     // 容量
	Pending  int     // 当前待消费数
	TotalIn  int64   // 总入队数
	TotalOut int64   // 总出队数
	Dropped  int64   // 丢弃数
	Usage    float64 // 使用率
}

// NewStreamBuffer 创建事件流缓冲区（对外导出）
func NewStreamBuffer(capacity int, threshold float64) *StreamBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &StreamBuffer{
		events:    make(chan *Event, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// Push 推入事件（非阻塞）
// 返回 true 表示成功，false 表示缓冲区已满（事件被丢弃）
func (b *StreamBuffer) Push(event *Event) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	select {
	case b.events <- event:
		b.mu.Unlock()
		atomic.AddInt64(&b.totalIn, 1)
		b.checkPressure()
		return true
	default:
		b.mu.Unlock()
		// 缓冲区满，丢弃事件
		atomic.AddInt64(&b.dropped, 1)
		return false
	}
}

// Events 返回消费通道（对外导出）
// 缓冲区关闭后通道被关闭，消费方range退出
func (b *StreamBuffer) Events() <-chan *Event {
	return b.events
}

// MarkConsumed 记录一次消费（对外导出）
func (b *StreamBuffer) MarkConsumed() {
	atomic.AddInt64(&b.totalOut, 1)
}

// Close 关闭缓冲区（对外导出）
func (b *StreamBuffer) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.events)
		b.mu.Unlock()
	})
}

// Stats 当前统计信息（对外导出）
func (b *StreamBuffer) Stats() BufferStats {
	pending := len(b.events)
	return BufferStats{
		Capacity: b.capacity,
		Pending:  pending,
		TotalIn:  atomic.LoadInt64(&b.totalIn),
		TotalOut: atomic.LoadInt64(&b.totalOut),
		Dropped:  atomic.LoadInt64(&b.dropped),
		Usage:    float64(pending) / float64(b.capacity),
	}
}

// checkPressure 检查并记录背压状态变化（内部方法）
func (b *StreamBuffer) checkPressure() {
	usage := float64(len(b.events)) / float64(b.capacity)
	if usage >= b.threshold {
		if atomic.CompareAndSwapInt32(&b.pressured, 0, 1) {
			log.Printf("⚠️ 事件流缓冲区背压触发: usage=%.0f%%", usage*100)
		}
		return
	}
	if usage < b.threshold/2 {
		if atomic.CompareAndSwapInt32(&b.pressured, 1, 0) {
			log.Printf("✅ 事件流缓冲区背压解除: usage=%.0f%%", usage*100)
		}
	}
}
