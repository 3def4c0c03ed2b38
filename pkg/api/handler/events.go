package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/module-engine/pkg/core/events"
)

// streamedEventTypes WebSocket推送的事件类型
var streamedEventTypes = []events.EventType{
	events.EventWorkflowStarted,
	events.EventStepCompleted,
	events.EventStepFailed,
	events.EventWorkflowRolledBack,
	events.EventWorkflowCompleted,
	events.EventWorkflowCancelled,
	events.EventBulkProgress,
	events.EventBulkCompleted,
}

// streamBufferCapacity 每个连接的事件缓冲区容量
const streamBufferCapacity = 256

// EventsHandler 事件流API处理器
// 将事件总线上的引擎事件桥接到WebSocket连接
type EventsHandler struct {
	bus      events.Bus
	upgrader websocket.Upgrader
}

// NewEventsHandler 创建EventsHandler
func NewEventsHandler(bus events.Bus) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 建立事件流WebSocket连接
// GET /api/v1/events/stream
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 每个连接独立缓冲区：总线回调只入队，慢速客户端不阻塞总线
	buffer := events.NewStreamBuffer(streamBufferCapacity, 0.8)
	defer buffer.Close()

	subscriptions := make([]events.SubscriptionID, 0, len(streamedEventTypes))
	for _, eventType := range streamedEventTypes {
		id, err := h.bus.Subscribe(eventType, func(event *events.Event) error {
			buffer.Push(event)
			return nil
		})
		if err != nil {
			log.Printf("⚠️ 订阅事件失败: type=%s, err=%v", eventType, err)
			continue
		}
		subscriptions = append(subscriptions, id)
	}
	defer func() {
		for _, id := range subscriptions {
			_ = h.bus.Unsubscribe(id)
		}
	}()

	log.Printf("✅ 事件流连接已建立: remote=%s", conn.RemoteAddr())

	// 读循环仅用于感知客户端断开
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 写循环从缓冲区消费事件
	for {
		select {
		case event, ok := <-buffer.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("🔄 事件流连接已断开: remote=%s, stats=%+v", conn.RemoteAddr(), buffer.Stats())
				return
			}
			buffer.MarkConsumed()
		case <-readClosed:
			log.Printf("🔄 事件流连接已断开: remote=%s, stats=%+v", conn.RemoteAddr(), buffer.Stats())
			return
		}
	}
}
