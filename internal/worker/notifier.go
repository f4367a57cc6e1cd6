package worker

import (
	"context"

	"venue-ledger/internal/model"
	"venue-ledger/pkg/logger"

	"go.uber.org/zap"
)

// Notifier 候位通知的投遞端；實際 SMS / push 不在這個服務內
type Notifier interface {
	WaitlistReady(ctx context.Context, event *model.LedgerEvent) error
}

type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier() Notifier {
	return &LogNotifier{log: logger.WithComponent("notifier")}
}

func (n *LogNotifier) WaitlistReady(ctx context.Context, event *model.LedgerEvent) error {
	n.log.Info("waitlist entry ready",
		zap.String("venue_id", event.VenueID.String()),
		zap.String("entry_id", event.EntityID.String()),
		zap.String("name", event.Attributes["name"]),
		zap.String("expires_at", event.Attributes["expires_at"]),
	)
	return nil
}
