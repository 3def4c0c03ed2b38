package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamBuffer_PushAndConsume(t *testing.T) {
	buffer := NewStreamBuffer(4, 0.8)
	defer buffer.Close()

	event := NewEvent(EventWorkflowStarted, "wf-1", "star-atlas", nil)
	assert.True(t, buffer.Push(event))

	received := <-buffer.Events()
	buffer.MarkConsumed()
	assert.Equal(t, event.ID, received.ID)

	stats := buffer.Stats()
	assert.Equal(t, int64(1), stats.TotalIn)
	assert.Equal(t, int64(1), stats.TotalOut)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestStreamBuffer_DropsWhenFull(t *testing.T) {
	buffer := NewStreamBuffer(2, 0.8)
	defer buffer.Close()

	assert.True(t, buffer.Push(NewEvent(EventStepCompleted, "wf-1", "m", nil)))
	assert.True(t, buffer.Push(NewEvent(EventStepCompleted, "wf-1", "m", nil)))
	// 缓冲区满，第三个事件被丢弃
	assert.False(t, buffer.Push(NewEvent(EventStepCompleted, "wf-1", "m", nil)))

	stats := buffer.Stats()
	assert.Equal(t, int64(2), stats.TotalIn)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 2, stats.Pending)
}

func TestStreamBuffer_CloseStopsConsumers(t *testing.T) {
	buffer := NewStreamBuffer(4, 0.8)
	buffer.Push(NewEvent(EventWorkflowCompleted, "wf-1", "m", nil))
	buffer.Close()

	// 关闭后Push被拒绝
	assert.False(t, buffer.Push(NewEvent(EventWorkflowCompleted, "wf-2", "m", nil)))

	// 关闭前入队的事件仍可消费，之后通道关闭
	_, ok := <-buffer.Events()
	assert.True(t, ok)
	_, ok = <-buffer.Events()
	assert.False(t, ok)
}
