package worker

import (
	"context"

	"venue-ledger/internal/model"
	"venue-ledger/internal/queue"
	"venue-ledger/pkg/logger"

	"go.uber.org/zap"
)

// TurnoverRecorder 入座事件轉成 ETA 樣本
type TurnoverRecorder interface {
	RecordSeated(ctx context.Context, event *model.LedgerEvent) error
}

type EventWorker interface {
	// 訂閱帳本事件並分派給外部協作者
	Start(ctx context.Context) error
}

type EventWorkerImpl struct {
	queue    queue.EventQueue
	notifier Notifier
	turnover TurnoverRecorder
}

// NewEventWorker turnover 可為 nil，此時不記錄樣本
func NewEventWorker(q queue.EventQueue, notifier Notifier, turnover TurnoverRecorder) EventWorker {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &EventWorkerImpl{
		queue:    q,
		notifier: notifier,
		turnover: turnover,
	}
}

func (w *EventWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			if err := w.handle(ctx, msg.Data); err != nil {
				logger.WithComponent("worker").Warn("handle ledger event failed, will retry",
					zap.String("event_id", msg.Data.ID),
					zap.String("type", string(msg.Data.Type)),
					zap.Error(err),
				)
				msg.Nack(true)
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// handle 其他事件類型目前沒有訂閱者，直接 ack
func (w *EventWorkerImpl) handle(ctx context.Context, event *model.LedgerEvent) error {
	switch event.Type {
	case model.EventWaitlistNotified:
		return w.notifier.WaitlistReady(ctx, event)
	case model.EventWaitlistSeated:
		if w.turnover == nil {
			return nil
		}
		return w.turnover.RecordSeated(ctx, event)
	case model.EventPOSSessionOpened:
		logger.WithComponent("worker").Debug("pos session opened",
			zap.String("venue_id", event.VenueID.String()),
			zap.String("booking_id", event.EntityID.String()),
			zap.String("pos_session_id", event.Attributes["pos_session_id"]),
		)
	}
	return nil
}
