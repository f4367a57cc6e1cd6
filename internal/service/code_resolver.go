package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
)

type CodeResolver interface {
	// 將掃描或手動輸入的代碼解析為實體
	Resolve(ctx context.Context, venueID uuid.UUID, code string) (*model.EntityRef, error)
}

type CodeResolverImpl struct {
	bookings repository.BookingRepository
	packages repository.PackageRepository
	promos   repository.PromoRepository
}

func NewCodeResolver(
	bookings repository.BookingRepository,
	packages repository.PackageRepository,
	promos repository.PromoRepository,
) CodeResolver {
	return &CodeResolverImpl{
		bookings: bookings,
		packages: packages,
		promos:   promos,
	}
}

// payloadKind QR payload 的三種已知格式，依此順序比對
type payloadKind int

const (
	payloadPass payloadKind = iota
	payloadPurchase
	payloadPromo
)

type scanPayload struct {
	kind    payloadKind
	value   string
	venueID *uuid.UUID
}

type passPayload struct {
	PassID  string  `json:"passId"`
	VenueID *string `json:"venueId"`
}

type purchasePayload struct {
	PurchaseID string  `json:"purchaseId"`
	VenueID    *string `json:"venueId"`
}

type promoPayload struct {
	PromoCode string  `json:"promoCode"`
	VenueID   *string `json:"venueId"`
}

func (r *CodeResolverImpl) Resolve(ctx context.Context, venueID uuid.UUID, code string) (*model.EntityRef, error) {
	raw := strings.TrimSpace(code)
	if raw == "" {
		return nil, apperrors.NewValidationError("code", "must not be empty")
	}

	// 1, 2. 個別 guest 前綴優先，避免和短的訂位代碼混淆
	switch {
	case model.IsBookingGuestCode(raw):
		return r.resolveBookingGuestCode(ctx, venueID, raw)
	case model.IsPackageGuestCode(raw):
		return r.resolvePackageGuestCode(ctx, venueID, raw)
	}

	// 3. 結構化 payload；JSON 物件但不符合任何格式時直接拒絕，不往下做字面查詢
	if strings.HasPrefix(raw, "{") && json.Valid([]byte(raw)) {
		payload, err := parseScanPayload(raw)
		if err != nil {
			return nil, err
		}
		if payload.venueID != nil && *payload.venueID != venueID {
			return nil, &apperrors.WrongVenueError{
				Kind:          "scan payload",
				EntityVenueID: payload.venueID.String(),
				CallerVenueID: venueID.String(),
			}
		}
		return r.resolvePayload(ctx, venueID, payload)
	}

	// 4. 字面查詢
	return r.resolveLiteral(ctx, venueID, raw)
}

// parseScanPayload 依 pass → purchase → promo 嚴格比對，不接受多餘欄位
func parseScanPayload(raw string) (*scanPayload, error) {
	var pass passPayload
	if decodeStrict(raw, &pass) && strings.TrimSpace(pass.PassID) != "" {
		return newScanPayload(payloadPass, pass.PassID, pass.VenueID)
	}

	var purchase purchasePayload
	if decodeStrict(raw, &purchase) && strings.TrimSpace(purchase.PurchaseID) != "" {
		return newScanPayload(payloadPurchase, purchase.PurchaseID, purchase.VenueID)
	}

	var promo promoPayload
	if decodeStrict(raw, &promo) && strings.TrimSpace(promo.PromoCode) != "" {
		return newScanPayload(payloadPromo, promo.PromoCode, promo.VenueID)
	}

	return nil, apperrors.NewValidationError("code", "scan payload does not match any known format")
}

func decodeStrict(raw string, v any) bool {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return false
	}
	// 只允許單一物件
	return !dec.More()
}

func newScanPayload(kind payloadKind, value string, venue *string) (*scanPayload, error) {
	payload := &scanPayload{kind: kind, value: strings.TrimSpace(value)}
	if venue != nil && strings.TrimSpace(*venue) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*venue))
		if err != nil {
			return nil, apperrors.NewValidationError("venueId", "must be a uuid")
		}
		payload.venueID = &id
	}
	return payload, nil
}

func (r *CodeResolverImpl) resolvePayload(ctx context.Context, venueID uuid.UUID, payload *scanPayload) (*model.EntityRef, error) {
	value := payload.value

	switch payload.kind {
	case payloadPass:
		if model.IsBookingGuestCode(value) {
			return r.resolveBookingGuestCode(ctx, venueID, value)
		}
		if model.IsPackageGuestCode(value) {
			return r.resolvePackageGuestCode(ctx, venueID, value)
		}
		if id, err := uuid.Parse(value); err == nil {
			return r.resolvePassID(ctx, venueID, id)
		}
		booking, err := r.bookings.FindByReference(ctx, venueID, value)
		if err != nil {
			return nil, err
		}
		return bookingRef(booking, venueID)

	case payloadPurchase:
		if model.IsPackageGuestCode(value) {
			return r.resolvePackageGuestCode(ctx, venueID, value)
		}
		var purchase *model.PackagePurchase
		var err error
		if id, parseErr := uuid.Parse(value); parseErr == nil {
			purchase, err = r.packages.FindPurchaseByID(ctx, id)
		} else {
			purchase, err = r.packages.FindPurchaseByScanCode(ctx, venueID, value)
		}
		if err != nil {
			return nil, err
		}
		return purchaseRef(purchase, venueID)

	case payloadPromo:
		promo, err := r.promos.FindByCode(ctx, venueID, value)
		if err != nil {
			return nil, err
		}
		return promoRef(promo, venueID)
	}

	return nil, apperrors.NewValidationError("code", fmt.Sprintf("unsupported payload kind %d", payload.kind))
}

// resolvePassID pass id 可能是 booking guest、booking 或 package guest 的 id
func (r *CodeResolverImpl) resolvePassID(ctx context.Context, venueID, id uuid.UUID) (*model.EntityRef, error) {
	guest, err := r.bookings.FindGuestByID(ctx, id)
	if err == nil {
		return bookingGuestRef(guest, venueID)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	booking, err := r.bookings.FindByID(ctx, id)
	if err == nil {
		return bookingRef(booking, venueID)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	packageGuest, err := r.packages.FindGuestByID(ctx, id)
	if err == nil {
		return packageGuestRef(packageGuest, venueID)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	return nil, apperrors.NewNotFoundError("pass", id.String())
}

func (r *CodeResolverImpl) resolveBookingGuestCode(ctx context.Context, venueID uuid.UUID, code string) (*model.EntityRef, error) {
	guest, err := r.bookings.FindGuestByScanCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return bookingGuestRef(guest, venueID)
}

func (r *CodeResolverImpl) resolvePackageGuestCode(ctx context.Context, venueID uuid.UUID, code string) (*model.EntityRef, error) {
	guest, err := r.packages.FindGuestByScanCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return packageGuestRef(guest, venueID)
}

// resolveLiteral 訂位代碼 → 購買代碼 → promo；本場館的命中優先，只在其他場館找到時回 WrongVenue
func (r *CodeResolverImpl) resolveLiteral(ctx context.Context, venueID uuid.UUID, raw string) (*model.EntityRef, error) {
	lookups := []func() (*model.EntityRef, error){
		func() (*model.EntityRef, error) {
			booking, err := r.bookings.FindByReference(ctx, venueID, raw)
			if err != nil {
				return nil, err
			}
			return bookingRef(booking, venueID)
		},
		func() (*model.EntityRef, error) {
			purchase, err := r.packages.FindPurchaseByScanCode(ctx, venueID, raw)
			if err != nil {
				return nil, err
			}
			return purchaseRef(purchase, venueID)
		},
		func() (*model.EntityRef, error) {
			promo, err := r.promos.FindByCode(ctx, venueID, raw)
			if err != nil {
				return nil, err
			}
			return promoRef(promo, venueID)
		},
	}

	var wrongVenue error
	for _, lookup := range lookups {
		ref, err := lookup()
		switch {
		case err == nil:
			return ref, nil
		case errors.Is(err, apperrors.ErrWrongVenue):
			if wrongVenue == nil {
				wrongVenue = err
			}
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, err
		}
	}

	if wrongVenue != nil {
		return nil, wrongVenue
	}
	return nil, apperrors.NewNotFoundError("code", raw)
}

func bookingGuestRef(guest *model.BookingGuest, venueID uuid.UUID) (*model.EntityRef, error) {
	if err := checkVenue("booking guest", guest.VenueID, venueID); err != nil {
		return nil, err
	}
	parent := guest.BookingID
	return &model.EntityRef{
		Kind:     model.EntityKindBookingGuest,
		ID:       guest.ID,
		VenueID:  guest.VenueID,
		ParentID: &parent,
		Code:     guest.ScanCode,
	}, nil
}

func bookingRef(booking *model.Booking, venueID uuid.UUID) (*model.EntityRef, error) {
	if err := checkVenue("booking", booking.VenueID, venueID); err != nil {
		return nil, err
	}
	return &model.EntityRef{
		Kind:    model.EntityKindBooking,
		ID:      booking.ID,
		VenueID: booking.VenueID,
		Code:    booking.ReferenceCode,
	}, nil
}

func packageGuestRef(guest *model.PackageGuest, venueID uuid.UUID) (*model.EntityRef, error) {
	if err := checkVenue("package guest", guest.VenueID, venueID); err != nil {
		return nil, err
	}
	parent := guest.PurchaseID
	return &model.EntityRef{
		Kind:     model.EntityKindPackageGuest,
		ID:       guest.ID,
		VenueID:  guest.VenueID,
		ParentID: &parent,
		Code:     guest.ScanCode,
	}, nil
}

func purchaseRef(purchase *model.PackagePurchase, venueID uuid.UUID) (*model.EntityRef, error) {
	if err := checkVenue("package purchase", purchase.VenueID, venueID); err != nil {
		return nil, err
	}
	return &model.EntityRef{
		Kind:    model.EntityKindPackagePurchase,
		ID:      purchase.ID,
		VenueID: purchase.VenueID,
		Code:    purchase.ScanCode,
	}, nil
}

func promoRef(promo *model.PromoCode, venueID uuid.UUID) (*model.EntityRef, error) {
	if err := checkVenue("promo code", promo.VenueID, venueID); err != nil {
		return nil, err
	}
	return &model.EntityRef{
		Kind:    model.EntityKindPromoCode,
		ID:      promo.ID,
		VenueID: promo.VenueID,
		Code:    promo.Code,
	}, nil
}
