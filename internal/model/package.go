package model

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus 套票購買狀態；active / partially_redeemed / fully_redeemed 由兌換紀錄推導
type PurchaseStatus string

const (
	PurchaseStatusActive            PurchaseStatus = "active"
	PurchaseStatusPartiallyRedeemed PurchaseStatus = "partially_redeemed"
	PurchaseStatusFullyRedeemed     PurchaseStatus = "fully_redeemed"
	PurchaseStatusExpired           PurchaseStatus = "expired"
	PurchaseStatusCancelled         PurchaseStatus = "cancelled"
)

func (s PurchaseStatus) IsValid() bool {
	switch s {
	case PurchaseStatusActive, PurchaseStatusPartiallyRedeemed, PurchaseStatusFullyRedeemed,
		PurchaseStatusExpired, PurchaseStatusCancelled:
		return true
	}
	return false
}

// IsRedeemable 只有 active 和 partially_redeemed 可以再兌換
func (s PurchaseStatus) IsRedeemable() bool {
	return s == PurchaseStatusActive || s == PurchaseStatusPartiallyRedeemed
}

// RedemptionRule 項目兌換規則
type RedemptionRule string

const (
	RedemptionRuleCountable RedemptionRule = "countable"
	RedemptionRuleUnlimited RedemptionRule = "unlimited"
)

// GuestRedemptionStatus 個別 guest 的兌換狀態
type GuestRedemptionStatus string

const (
	GuestRedemptionPending           GuestRedemptionStatus = "pending"
	GuestRedemptionPartiallyRedeemed GuestRedemptionStatus = "partially_redeemed"
	GuestRedemptionFullyRedeemed     GuestRedemptionStatus = "fully_redeemed"
)

type Package struct {
	ID        uuid.UUID `json:"id" db:"id"`
	VenueID   uuid.UUID `json:"venue_id" db:"venue_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PackageItem 套票定義層級的項目，同一套票的所有購買共用
type PackageItem struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	PackageID      uuid.UUID      `json:"package_id" db:"package_id"`
	Name           string         `json:"name" db:"name"`
	Kind           string         `json:"kind" db:"kind"`
	Quantity       int            `json:"quantity" db:"quantity"`
	RedemptionRule RedemptionRule `json:"redemption_rule" db:"redemption_rule"`
}

func (i *PackageItem) IsCountable() bool {
	return i.RedemptionRule != RedemptionRuleUnlimited
}

// PackagePurchase 套票購買
type PackagePurchase struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	PackageID       uuid.UUID      `json:"package_id" db:"package_id"`
	VenueID         uuid.UUID      `json:"venue_id" db:"venue_id"`
	ScanCode        string         `json:"scan_code" db:"scan_code"`
	PurchaserUserID *uuid.UUID     `json:"purchaser_user_id,omitempty" db:"purchaser_user_id"`
	PurchaserName   *string        `json:"purchaser_name,omitempty" db:"purchaser_name"`
	GuestCount      int            `json:"guest_count" db:"guest_count"`
	Status          PurchaseStatus `json:"status" db:"status"`
	AmountPaid      float64        `json:"amount_paid" db:"amount_paid"`
	PurchasedAt     time.Time      `json:"purchased_at" db:"purchased_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// PackageGuest 多人套票中的一位
type PackageGuest struct {
	ID               uuid.UUID             `json:"id" db:"id"`
	PurchaseID       uuid.UUID             `json:"purchase_id" db:"purchase_id"`
	VenueID          uuid.UUID             `json:"venue_id" db:"-"`
	GuestNumber      int                   `json:"guest_number" db:"guest_number"`
	ScanCode         string                `json:"scan_code" db:"scan_code"`
	Identity         GuestIdentity         `json:"identity"`
	IsPrimary        bool                  `json:"is_primary" db:"is_primary"`
	RedemptionStatus GuestRedemptionStatus `json:"redemption_status" db:"redemption_status"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" db:"updated_at"`
}

// PackageRedemption append-only 兌換紀錄
type PackageRedemption struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	PurchaseID     uuid.UUID  `json:"purchase_id" db:"purchase_id"`
	PackageItemID  uuid.UUID  `json:"package_item_id" db:"package_item_id"`
	PackageGuestID *uuid.UUID `json:"package_guest_id,omitempty" db:"package_guest_id"`
	Quantity       int        `json:"quantity" db:"quantity"`
	OperatorID     string     `json:"operator_id" db:"operator_id"`
	RedeemedAt     time.Time  `json:"redeemed_at" db:"redeemed_at"`
}

// RedemptionLine 一次兌換請求中的一行
type RedemptionLine struct {
	ItemID   uuid.UUID `json:"item_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required"`
}

// RedeemRequest 兌換請求；PackageGuestID 非 nil 時為 guest 範圍的兌換
type RedeemRequest struct {
	VenueID        uuid.UUID
	OperatorID     string
	PurchaseID     uuid.UUID
	PackageGuestID *uuid.UUID
	Lines          []RedemptionLine
}

// RedemptionResult 兌換成功後的結果
type RedemptionResult struct {
	PurchaseID     uuid.UUID              `json:"purchase_id"`
	Status         PurchaseStatus         `json:"status"`
	PreviousStatus PurchaseStatus         `json:"previous_status"`
	Redemptions    []*PackageRedemption   `json:"redemptions"`
	Balances       []ItemBalance          `json:"balances"`
	GuestID        *uuid.UUID             `json:"guest_id,omitempty"`
	GuestStatus    *GuestRedemptionStatus `json:"guest_status,omitempty"`
}

// ItemBalance 單一項目的額度；unlimited 項目 Remaining 為 nil
type ItemBalance struct {
	ItemID         uuid.UUID      `json:"item_id"`
	Name           string         `json:"name"`
	RedemptionRule RedemptionRule `json:"redemption_rule"`
	Allotted       int            `json:"allotted"`
	Redeemed       int            `json:"redeemed"`
	Remaining      *int           `json:"remaining,omitempty"`
}

// PurchaseBalance 購買層級的剩餘額度
type PurchaseBalance struct {
	PurchaseID uuid.UUID      `json:"purchase_id"`
	Status     PurchaseStatus `json:"status"`
	Items      []ItemBalance  `json:"items"`
}

// Remaining countable 項目的剩餘數量，不會小於 0
func Remaining(item *PackageItem, redeemed int) int {
	left := item.Quantity - redeemed
	if left < 0 {
		return 0
	}
	return left
}

// BuildBalances 依項目順序組出額度表
func BuildBalances(items []*PackageItem, redeemed map[uuid.UUID]int) []ItemBalance {
	balances := make([]ItemBalance, 0, len(items))
	for _, item := range items {
		b := ItemBalance{
			ItemID:         item.ID,
			Name:           item.Name,
			RedemptionRule: item.RedemptionRule,
			Allotted:       item.Quantity,
			Redeemed:       redeemed[item.ID],
		}
		if item.IsCountable() {
			left := Remaining(item, b.Redeemed)
			b.Remaining = &left
		}
		balances = append(balances, b)
	}
	return balances
}

// RollupPurchaseStatus 由兌換累計推導購買狀態
//   - fully_redeemed：至少一個 countable 項目，且全部用完（unlimited 不影響）
//   - partially_redeemed：有 countable 項目開始兌換但尚未全部用完
//   - 其餘維持 current
//
// expired / cancelled 不會被覆蓋
func RollupPurchaseStatus(current PurchaseStatus, items []*PackageItem, redeemed map[uuid.UUID]int) PurchaseStatus {
	if !current.IsRedeemable() && current != PurchaseStatusFullyRedeemed {
		return current
	}

	countable, exhausted, touched := 0, 0, 0
	for _, item := range items {
		if !item.IsCountable() {
			continue
		}
		countable++
		n := redeemed[item.ID]
		if n > 0 {
			touched++
		}
		if n >= item.Quantity {
			exhausted++
		}
	}

	switch {
	case countable > 0 && exhausted == countable:
		return PurchaseStatusFullyRedeemed
	case touched > 0 || exhausted > 0:
		return PurchaseStatusPartiallyRedeemed
	default:
		return current
	}
}

// GuestShare 每位 guest 可分得的額度（無條件進位，至少 1）
func GuestShare(item *PackageItem, guestCount int) int {
	if guestCount <= 1 {
		return item.Quantity
	}
	share := (item.Quantity + guestCount - 1) / guestCount
	if share < 1 {
		return 1
	}
	return share
}

// RollupGuestStatus 與購買層級相同的規則，但只看歸屬於此 guest 的兌換，額度以 GuestShare 計
func RollupGuestStatus(items []*PackageItem, guestRedeemed map[uuid.UUID]int, guestCount int) GuestRedemptionStatus {
	countable, exhausted, touched := 0, 0, 0
	for _, item := range items {
		if !item.IsCountable() {
			continue
		}
		countable++
		n := guestRedeemed[item.ID]
		if n > 0 {
			touched++
		}
		if n >= GuestShare(item, guestCount) {
			exhausted++
		}
	}

	switch {
	case countable > 0 && exhausted == countable:
		return GuestRedemptionFullyRedeemed
	case touched > 0 || exhausted > 0:
		return GuestRedemptionPartiallyRedeemed
	default:
		return GuestRedemptionPending
	}
}

// RedeemItemsRequest HTTP 兌換請求
type RedeemItemsRequest struct {
	PackageGuestID *uuid.UUID       `json:"package_guest_id"`
	Lines          []RedemptionLine `json:"lines" binding:"required,min=1"`
}
