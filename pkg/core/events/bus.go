package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus 事件总线接口（对外导出）
// 发布为fire-and-forget语义，订阅方不得阻塞发布方
type Bus interface {
	// Publish 发布事件
	Publish(ctx context.Context, event *Event) error
	// Subscribe 订阅指定类型的事件
	Subscribe(eventType EventType, handler Handler) (SubscriptionID, error)
	// Unsubscribe 取消订阅
	Unsubscribe(subscriptionID SubscriptionID) error
	// Close 关闭事件总线
	Close() error
}

// subscription 内部订阅结构
type subscription struct {
	id        SubscriptionID
	eventType EventType
	handler   Handler
	active    atomic.Bool
}

// busImpl 基于Watermill gochannel的事件总线实现（内部实现）
type busImpl struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger watermill.LoggerAdapter

	subscriptions  sync.Map // subscriptionID -> *subscription
	subscriptionID int64    // atomic，订阅ID生成器

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// NewBus 创建事件总线（对外导出）
func NewBus(debug bool) (Bus, error) {
	logger := watermill.NewStdLogger(debug, false)

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("创建消息路由器失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &busImpl{
		pubsub: pubsub,
		router: router,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	// 启动路由器
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("消息路由器退出", err, nil)
		}
	}()
	<-router.Running()

	bus.mu.Lock()
	bus.running = true
	bus.mu.Unlock()

	return bus, nil
}

// Publish 发布事件（实现Bus接口）
func (b *busImpl) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("事件不能为空")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("workflow_id", event.WorkflowID)
	msg.Metadata.Set("module_name", event.ModuleName)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅事件（实现Bus接口）
// 动态向路由器添加处理器，已运行的路由器通过RunHandlers启动新处理器
func (b *busImpl) Subscribe(eventType EventType, handler Handler) (SubscriptionID, error) {
	id := SubscriptionID(fmt.Sprintf("sub-%d", atomic.AddInt64(&b.subscriptionID, 1)))

	sub := &subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
	}
	sub.active.Store(true)
	b.subscriptions.Store(id, sub)

	handlerName := fmt.Sprintf("dynamic_handler_%s", id)
	b.router.AddNoPublisherHandler(
		handlerName,
		string(eventType),
		b.pubsub,
		func(msg *message.Message) error {
			subValue, ok := b.subscriptions.Load(id)
			if !ok {
				return nil
			}
			s := subValue.(*subscription)
			if !s.active.Load() {
				return nil
			}

			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				return err
			}
			return s.handler(&event)
		},
	)

	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if running {
		if err := b.router.RunHandlers(b.ctx); err != nil {
			b.subscriptions.Delete(id)
			return "", fmt.Errorf("启动订阅处理器失败: %w", err)
		}
	}

	return id, nil
}

// Unsubscribe 取消订阅（实现Bus接口）
// 处理器保留在路由器中但不再投递到handler
func (b *busImpl) Unsubscribe(subscriptionID SubscriptionID) error {
	subValue, ok := b.subscriptions.Load(subscriptionID)
	if !ok {
		return fmt.Errorf("订阅 %s 不存在", subscriptionID)
	}
	subValue.(*subscription).active.Store(false)
	b.subscriptions.Delete(subscriptionID)
	return nil
}

// Close 关闭事件总线（实现Bus接口）
func (b *busImpl) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	b.cancel()
	if err := b.router.Close(); err != nil {
		return fmt.Errorf("关闭消息路由器失败: %w", err)
	}
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("关闭Pub/Sub失败: %w", err)
	}
	return nil
}
