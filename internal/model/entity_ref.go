package model

import "github.com/google/uuid"

// EntityKind 掃碼解析後的實體類型
type EntityKind string

const (
	EntityKindBookingGuest    EntityKind = "booking_guest"
	EntityKindBooking         EntityKind = "booking"
	EntityKindPackageGuest    EntityKind = "package_guest"
	EntityKindPackagePurchase EntityKind = "package_purchase"
	EntityKindPromoCode       EntityKind = "promo_code"
)

// EntityRef 解析結果；ParentID 為 guest 所屬的訂位或購買
type EntityRef struct {
	Kind     EntityKind `json:"kind"`
	ID       uuid.UUID  `json:"id"`
	VenueID  uuid.UUID  `json:"venue_id"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Code     string     `json:"code"`
}

// PromoCode 只用於掃碼解析，編輯在其他系統
type PromoCode struct {
	ID          uuid.UUID `json:"id" db:"id"`
	VenueID     uuid.UUID `json:"venue_id" db:"venue_id"`
	Code        string    `json:"code" db:"code"`
	Description *string   `json:"description,omitempty" db:"description"`
	Active      bool      `json:"active" db:"active"`
}

// ResolveRequest 掃描或手動輸入的代碼
type ResolveRequest struct {
	Code string `json:"code" binding:"required"`
}
