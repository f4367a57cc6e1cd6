package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrWrongVenue            = errors.New("wrong venue")
	ErrAlreadyResolved       = errors.New("already resolved")
	ErrInsufficientAllotment = errors.New("insufficient allotment")
	ErrPurchaseNotActive     = errors.New("purchase not active")
	ErrItemNotFound          = errors.New("item not found")
	ErrValidation            = errors.New("validation failed")
	ErrInternalServerError   = errors.New("internal server error")

	// ErrConditionFailed 條件更新沒有命中任何列；由 service 重新讀取後歸類為上面的錯誤
	ErrConditionFailed = errors.New("conditional update matched no rows")
)

// NotFoundError 找不到代碼或實體
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%q not found", e.Key)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// WrongVenueError 實體存在，但屬於其他場館
type WrongVenueError struct {
	Kind          string
	EntityVenueID string
	CallerVenueID string
}

func (e *WrongVenueError) Error() string {
	return fmt.Sprintf("%s belongs to venue %s, not %s", e.Kind, e.EntityVenueID, e.CallerVenueID)
}

func (e *WrongVenueError) Unwrap() error { return ErrWrongVenue }

// AlreadyResolvedError 狀態機已在終止狀態
type AlreadyResolvedError struct {
	EntityID string
	Status   string
	Reason   string
}

func (e *AlreadyResolvedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s is already %s: %s", e.EntityID, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s is already %s", e.EntityID, e.Status)
}

func (e *AlreadyResolvedError) Unwrap() error { return ErrAlreadyResolved }

// InsufficientAllotmentError 兌換數量超過剩餘額度
type InsufficientAllotmentError struct {
	ItemID    string
	ItemName  string
	Requested int
	Remaining int
}

func (e *InsufficientAllotmentError) Error() string {
	return fmt.Sprintf("item %q (%s): requested %d, remaining %d", e.ItemName, e.ItemID, e.Requested, e.Remaining)
}

func (e *InsufficientAllotmentError) Unwrap() error { return ErrInsufficientAllotment }

type PurchaseNotActiveError struct {
	PurchaseID string
	Status     string
}

func (e *PurchaseNotActiveError) Error() string {
	return fmt.Sprintf("purchase %s is %s", e.PurchaseID, e.Status)
}

func (e *PurchaseNotActiveError) Unwrap() error { return ErrPurchaseNotActive }

type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("package item %s not found", e.ItemID)
}

func (e *ItemNotFoundError) Unwrap() error { return ErrItemNotFound }

// ValidationError 輸入格式錯誤，例如數量不是正數
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NewNotFoundError(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}
