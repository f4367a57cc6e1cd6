package model

import (
	"time"

	"github.com/google/uuid"
)

type POSSessionStatus string

const (
	POSSessionStatusOpen    POSSessionStatus = "open"
	POSSessionStatusBilling POSSessionStatus = "billing"
	POSSessionStatusClosed  POSSessionStatus = "closed"
)

// POSSession 入場後開啟的點餐 session
type POSSession struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	VenueID   uuid.UUID        `json:"venue_id" db:"venue_id"`
	BookingID uuid.UUID        `json:"booking_id" db:"booking_id"`
	Status    POSSessionStatus `json:"status" db:"status"`
	OpenedBy  string           `json:"opened_by" db:"opened_by"`
	OpenedAt  time.Time        `json:"opened_at" db:"opened_at"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty" db:"closed_at"`
}
