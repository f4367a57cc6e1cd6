package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEventType 帳本事件類型
type LedgerEventType string

const (
	EventGuestCheckedIn      LedgerEventType = "guest.checked_in"
	EventGuestNoShow         LedgerEventType = "guest.no_show"
	EventGuestNoShowUndone   LedgerEventType = "guest.no_show_undone"
	EventBookingCheckedIn    LedgerEventType = "booking.checked_in"
	EventBookingNoShow       LedgerEventType = "booking.no_show"
	EventBookingNoShowUndone LedgerEventType = "booking.no_show_undone"
	EventPOSSessionOpened    LedgerEventType = "pos.session_opened"
	EventPackageRedeemed     LedgerEventType = "package.redeemed"
	EventWaitlistJoined      LedgerEventType = "waitlist.joined"
	EventWaitlistNotified    LedgerEventType = "waitlist.notified"
	EventWaitlistSeated      LedgerEventType = "waitlist.seated"
	EventWaitlistRemoved     LedgerEventType = "waitlist.removed"
)

// LedgerEvent commit 之後發佈，給通知、POS 等外部協作者使用
type LedgerEvent struct {
	ID         string            `json:"id"`
	Type       LedgerEventType   `json:"type"`
	VenueID    uuid.UUID         `json:"venue_id"`
	EntityID   uuid.UUID         `json:"entity_id"`
	OperatorID string            `json:"operator_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewLedgerEvent(eventType LedgerEventType, venueID, entityID uuid.UUID, operatorID string, at time.Time) *LedgerEvent {
	return &LedgerEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		VenueID:    venueID,
		EntityID:   entityID,
		OperatorID: operatorID,
		OccurredAt: at,
		Attributes: map[string]string{},
	}
}
