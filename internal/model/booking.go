package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus 訂位狀態（由上游 checkout 流程決定）
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusDeclined  BookingStatus = "declined"
)

// IsAdmittable 取消或被拒絕的訂位不能入場
func (s BookingStatus) IsAdmittable() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CheckInStatus 入場狀態
type CheckInStatus string

const (
	CheckInStatusPending   CheckInStatus = "pending"
	CheckInStatusCheckedIn CheckInStatus = "checked_in"
	CheckInStatusNoShow    CheckInStatus = "no_show"
)

func (s CheckInStatus) IsValid() bool {
	switch s {
	case CheckInStatusPending, CheckInStatusCheckedIn, CheckInStatusNoShow:
		return true
	}
	return false
}

// IsResolved pending 以外都算已處理
func (s CheckInStatus) IsResolved() bool {
	return s == CheckInStatusCheckedIn || s == CheckInStatusNoShow
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
// no_show -> pending 只在 undo window 內允許，時間檢查由條件更新負責
func (s CheckInStatus) CanTransitionTo(target CheckInStatus) bool {
	transitions := map[CheckInStatus][]CheckInStatus{
		CheckInStatusPending:   {CheckInStatusCheckedIn, CheckInStatusNoShow},
		CheckInStatusNoShow:    {CheckInStatusPending},
		CheckInStatusCheckedIn: {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

// Booking 訂位
type Booking struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	VenueID       uuid.UUID     `json:"venue_id" db:"venue_id"`
	ReferenceCode string        `json:"reference_code" db:"reference_code"`
	BookingDate   time.Time     `json:"booking_date" db:"booking_date"`
	PartySize     int           `json:"party_size" db:"party_size"`
	Status        BookingStatus `json:"status" db:"status"`
	CheckInStatus CheckInStatus `json:"check_in_status" db:"check_in_status"`
	CheckedInAt   *time.Time    `json:"checked_in_at,omitempty" db:"checked_in_at"`
	NoShowAt      *time.Time    `json:"no_show_at,omitempty" db:"no_show_at"`
	Spend         *float64      `json:"spend,omitempty" db:"spend"`
	POSSessionID  *uuid.UUID    `json:"pos_session_id,omitempty" db:"pos_session_id"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// GuestIdentity 綁定會員或手填的姓名電話
type GuestIdentity struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Name   *string    `json:"name,omitempty"`
	Phone  *string    `json:"phone,omitempty"`
	Email  *string    `json:"email,omitempty"`
}

// BookingGuest 訂位中的一個入場名額
type BookingGuest struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	BookingID     uuid.UUID     `json:"booking_id" db:"booking_id"`
	VenueID       uuid.UUID     `json:"venue_id" db:"-"`
	GuestNumber   int           `json:"guest_number" db:"guest_number"`
	ScanCode      string        `json:"scan_code" db:"scan_code"`
	Identity      GuestIdentity `json:"identity"`
	IsPrimary     bool          `json:"is_primary" db:"is_primary"`
	CheckInStatus CheckInStatus `json:"check_in_status" db:"check_in_status"`
	CheckedInAt   *time.Time    `json:"checked_in_at,omitempty" db:"checked_in_at"`
	NoShowAt      *time.Time    `json:"no_show_at,omitempty" db:"no_show_at"`
	Spend         *float64      `json:"spend,omitempty" db:"spend"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// AdmissionTransition 條件更新的參數：只有仍在 From 狀態才會轉到 To
type AdmissionTransition struct {
	VenueID uuid.UUID
	From    CheckInStatus
	To      CheckInStatus
	At      time.Time
	Spend   *float64
	// NoShowAfter 非 nil 時，no_show_at 必須晚於此時間（undo window）
	NoShowAfter *time.Time
}

// AdmissionSummary 訂位層級的入場彙總
type AdmissionSummary struct {
	BookingID     uuid.UUID `json:"booking_id"`
	Total         int       `json:"total"`
	Pending       int       `json:"pending"`
	CheckedIn     int       `json:"checked_in"`
	NoShow        int       `json:"no_show"`
	FullyAdmitted bool      `json:"fully_admitted"`
}

// SummarizeAdmission 所有 guest 都離開 pending 才算 fully admitted；沒有 guest 時看訂位本身
func SummarizeAdmission(booking *Booking, guests []*BookingGuest) AdmissionSummary {
	summary := AdmissionSummary{BookingID: booking.ID}

	if len(guests) == 0 {
		summary.Total = 1
		countStatus(&summary, booking.CheckInStatus)
	} else {
		summary.Total = len(guests)
		for _, g := range guests {
			countStatus(&summary, g.CheckInStatus)
		}
	}

	summary.FullyAdmitted = summary.Pending == 0
	return summary
}

func countStatus(summary *AdmissionSummary, status CheckInStatus) {
	switch status {
	case CheckInStatusCheckedIn:
		summary.CheckedIn++
	case CheckInStatusNoShow:
		summary.NoShow++
	default:
		summary.Pending++
	}
}

// GuestOutcome 批次 no-show 中單一 guest 的結果
type GuestOutcome struct {
	GuestID     uuid.UUID     `json:"guest_id"`
	GuestNumber int           `json:"guest_number"`
	Succeeded   bool          `json:"succeeded"`
	Status      CheckInStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// BulkNoShowResult 部分失敗不會中斷整批
type BulkNoShowResult struct {
	BookingID uuid.UUID      `json:"booking_id"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Outcomes  []GuestOutcome `json:"outcomes"`
}

// CheckInResult 入場結果，附帶 POS session
type CheckInResult struct {
	Guest             *BookingGuest `json:"guest,omitempty"`
	Booking           *Booking      `json:"booking,omitempty"`
	POSSession        *POSSession   `json:"pos_session,omitempty"`
	POSSessionCreated bool          `json:"pos_session_created"`
}

// CheckInRequest 入場時可一併記錄消費金額
type CheckInRequest struct {
	Spend *float64 `json:"spend"`
}
