package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// WaitlistStatus 候位狀態
type WaitlistStatus string

const (
	WaitlistStatusWaiting  WaitlistStatus = "waiting"
	WaitlistStatusNotified WaitlistStatus = "notified"
	WaitlistStatusSeated   WaitlistStatus = "seated"
	WaitlistStatusRemoved  WaitlistStatus = "removed"
)

func (s WaitlistStatus) IsValid() bool {
	switch s {
	case WaitlistStatusWaiting, WaitlistStatusNotified, WaitlistStatusSeated, WaitlistStatusRemoved:
		return true
	}
	return false
}

func (s WaitlistStatus) IsTerminal() bool {
	return s == WaitlistStatusSeated || s == WaitlistStatusRemoved
}

// WaitlistAction 候位操作
type WaitlistAction string

const (
	WaitlistActionNotify WaitlistAction = "notify"
	WaitlistActionSeat   WaitlistAction = "seat"
	WaitlistActionRemove WaitlistAction = "remove"
)

var waitlistTransitions = map[WaitlistAction][]WaitlistStatus{
	WaitlistActionNotify: {WaitlistStatusWaiting},
	WaitlistActionSeat:   {WaitlistStatusWaiting, WaitlistStatusNotified},
	WaitlistActionRemove: {WaitlistStatusWaiting, WaitlistStatusNotified},
}

// Target 操作完成後的狀態
func (a WaitlistAction) Target() WaitlistStatus {
	switch a {
	case WaitlistActionNotify:
		return WaitlistStatusNotified
	case WaitlistActionSeat:
		return WaitlistStatusSeated
	case WaitlistActionRemove:
		return WaitlistStatusRemoved
	}
	return ""
}

// AllowedFrom 此操作允許的來源狀態
func (a WaitlistAction) AllowedFrom() []WaitlistStatus {
	return waitlistTransitions[a]
}

func (a WaitlistAction) ValidFrom(from WaitlistStatus) bool {
	for _, status := range waitlistTransitions[a] {
		if status == from {
			return true
		}
	}
	return false
}

// WaitlistEntry 候位紀錄；Position 不落地，每次讀取時重新計算
type WaitlistEntry struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	VenueID    uuid.UUID      `json:"venue_id" db:"venue_id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty" db:"user_id"`
	Name       string         `json:"name" db:"name"`
	PartySize  int            `json:"party_size" db:"party_size"`
	Phone      *string        `json:"phone,omitempty" db:"phone"`
	Email      *string        `json:"email,omitempty" db:"email"`
	Notes      *string        `json:"notes,omitempty" db:"notes"`
	Status     WaitlistStatus `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	NotifiedAt *time.Time     `json:"notified_at,omitempty" db:"notified_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	SeatedAt   *time.Time     `json:"seated_at,omitempty" db:"seated_at"`
	RemovedAt  *time.Time     `json:"removed_at,omitempty" db:"removed_at"`
	Position   *int           `json:"position,omitempty" db:"-"`
}

// IsStale 已通知但超過期限仍未入座
func (e *WaitlistEntry) IsStale(now time.Time) bool {
	return e.Status == WaitlistStatusNotified && e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// NotifyLatency 從加入到被通知的時間，未通知時回傳 false
func (e *WaitlistEntry) NotifyLatency() (time.Duration, bool) {
	if e.NotifiedAt == nil {
		return 0, false
	}
	return e.NotifiedAt.Sub(e.CreatedAt), true
}

// JoinWaitlistRequest 加入候位
type JoinWaitlistRequest struct {
	UserID    *uuid.UUID `json:"user_id"`
	Name      string     `json:"name" binding:"required"`
	PartySize int        `json:"party_size" binding:"required,min=1"`
	Phone     *string    `json:"phone"`
	Email     *string    `json:"email"`
	Notes     *string    `json:"notes"`
}

// WaitEstimate 預估等待時間
type WaitEstimate struct {
	EntryID          *uuid.UUID `json:"entry_id,omitempty"`
	Position         int        `json:"position"`
	AvgTurnoverMin   float64    `json:"avg_turnover_minutes"`
	Samples          int        `json:"samples"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Display          string     `json:"display"`
}

// EstimateWaitMinutes round(position × avgTurnoverMinutes)
func EstimateWaitMinutes(position int, avgTurnoverMinutes float64) int {
	if position <= 0 || avgTurnoverMinutes <= 0 {
		return 0
	}
	return int(math.Round(float64(position) * avgTurnoverMinutes))
}

// FormatWait <5 → "less than 5 min"；<60 → "~N min"；其餘 "~H hr" 或 "~H hr M min"
func FormatWait(minutes int) string {
	switch {
	case minutes < 5:
		return "less than 5 min"
	case minutes < 60:
		return fmt.Sprintf("~%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("~%d hr", h)
	}
	return fmt.Sprintf("~%d hr %d min", h, m)
}
