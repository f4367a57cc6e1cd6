package service

import (
	"context"
	"errors"
	"time"

	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"
	"venue-ledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	publishTimeout  = 2 * time.Second
	scanCodeRetries = 3
)

// EventPublisher commit 之後發佈帳本事件；queue.EventQueue 皆符合
type EventPublisher interface {
	Publish(ctx context.Context, event *model.LedgerEvent) error
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock 替換時間來源，測試 undo window 與通知期限時使用
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish best effort：事件發佈失敗只記 log，不影響已 commit 的主流程
func publish(ctx context.Context, events EventPublisher, component string, event *model.LedgerEvent) {
	if events == nil || event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := events.Publish(ctx, event); err != nil {
		logger.WithComponent(component).Warn("publish ledger event failed",
			zap.String("type", string(event.Type)),
			zap.String("entity_id", event.EntityID.String()),
			zap.Error(err),
		)
	}
}

func checkVenue(kind string, entityVenue, callerVenue uuid.UUID) error {
	if entityVenue != callerVenue {
		return &apperrors.WrongVenueError{
			Kind:          kind,
			EntityVenueID: entityVenue.String(),
			CallerVenueID: callerVenue.String(),
		}
	}
	return nil
}

// withScanCode 產生 scan code 並呼叫 create，撞碼時換一組重試
func withScanCode[T any](prefix string, create func(code string) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < scanCodeRetries; attempt++ {
		code, err := model.GenerateScanCode(prefix)
		if err != nil {
			return zero, err
		}
		result, err := create(code)
		if errors.Is(err, repository.ErrScanCodeConflict) {
			continue
		}
		return result, err
	}
	return zero, repository.ErrScanCodeConflict
}
