package queue

import (
	"context"
	"sync"
	"time"

	"venue-ledger/internal/model"
	"venue-ledger/pkg/logger"

	"go.uber.org/zap"
)

type Delivery struct {
	Data *model.LedgerEvent
	Ack  func()
	Nack func(requeue bool)
}

type EventQueue interface {
	// 發送帳本事件
	Publish(ctx context.Context, event *model.LedgerEvent) error
	// 訂閱帳本事件
	Subscribe(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// MemoryQueueConfig 重試設定；零值欄位使用預設
type MemoryQueueConfig struct {
	MaxDeliveries int           // 投遞達此次數仍 Nack(requeue) 視為毒藥消息並丟棄
	RetryBackoff  time.Duration // 第一次重投的延遲，之後每次加倍
}

func defaultMemoryQueueConfig() MemoryQueueConfig {
	return MemoryQueueConfig{
		MaxDeliveries: 5,
		RetryBackoff:  100 * time.Millisecond,
	}
}

// memoryMessage 帶著已投遞次數在 channel 中流動
type memoryMessage struct {
	event      *model.LedgerEvent
	deliveries int
}

type MemoryEventQueueImpl struct {
	// 使用 Go channel 來模擬 MQ 隊列
	ch        chan *memoryMessage
	cfg       MemoryQueueConfig
	closeOnce sync.Once
	done      chan struct{}
}

func NewMemoryEventQueue(bufferSize int) EventQueue {
	return NewMemoryEventQueueWithConfig(bufferSize, nil)
}

// NewMemoryEventQueueWithConfig config 可為 nil
func NewMemoryEventQueueWithConfig(bufferSize int, config *MemoryQueueConfig) EventQueue {
	cfg := defaultMemoryQueueConfig()
	if config != nil {
		if config.MaxDeliveries > 0 {
			cfg.MaxDeliveries = config.MaxDeliveries
		}
		if config.RetryBackoff > 0 {
			cfg.RetryBackoff = config.RetryBackoff
		}
	}
	return &MemoryEventQueueImpl{
		ch:   make(chan *memoryMessage, bufferSize),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (q *MemoryEventQueueImpl) Publish(ctx context.Context, event *model.LedgerEvent) error {
	select {
	case q.ch <- &memoryMessage{event: event}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

func (q *MemoryEventQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case msg := <-q.ch:
				msg.deliveries++
				d := Delivery{
					Data: msg.event,
					Ack:  func() {},
					Nack: func(requeue bool) {
						if requeue {
							q.requeue(msg)
						}
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// requeue 延遲後重回隊列 (100ms, 200ms, 400ms...)；超過投遞上限直接丟棄
func (q *MemoryEventQueueImpl) requeue(msg *memoryMessage) {
	if msg.deliveries >= q.cfg.MaxDeliveries {
		logger.WithComponent("mq").Warn("discard poison message",
			zap.String("event_id", msg.event.ID),
			zap.String("event_type", string(msg.event.Type)),
			zap.Int("deliveries", msg.deliveries),
			zap.Int("max_deliveries", q.cfg.MaxDeliveries),
		)
		return
	}

	backoff := q.cfg.RetryBackoff << (msg.deliveries - 1)
	time.AfterFunc(backoff, func() {
		select {
		case q.ch <- msg:
		case <-q.done:
		}
	})
}

func (q *MemoryEventQueueImpl) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
