package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
)

type RedemptionService interface {
	// RedeemItems 整批驗證後一次寫入；任何一行失敗整批拒絕
	RedeemItems(ctx context.Context, req model.RedeemRequest) (*model.RedemptionResult, error)
	GetPurchaseBalance(ctx context.Context, venueID, purchaseID uuid.UUID) (*model.PurchaseBalance, error)
	ListRedemptions(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageRedemption, error)

	ListPackageGuests(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageGuest, error)
	EnsurePrimaryPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error)
	AddPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error)
}

type RedemptionServiceImpl struct {
	packages repository.PackageRepository
	events   EventPublisher
	now      func() time.Time
}

func NewRedemptionService(packages repository.PackageRepository, events EventPublisher, opts ...Option) RedemptionService {
	o := buildOptions(opts)
	return &RedemptionServiceImpl{
		packages: packages,
		events:   events,
		now:      o.now,
	}
}

func (s *RedemptionServiceImpl) RedeemItems(ctx context.Context, req model.RedeemRequest) (*model.RedemptionResult, error) {
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.OperatorID) == "" {
		return nil, apperrors.NewValidationError("operator_id", "is required")
	}

	purchaseID := req.PurchaseID
	if req.PackageGuestID != nil {
		guest, err := s.packages.FindGuestByID(ctx, *req.PackageGuestID)
		if err != nil {
			return nil, err
		}
		if err := checkVenue("package guest", guest.VenueID, req.VenueID); err != nil {
			return nil, err
		}
		if purchaseID == uuid.Nil {
			purchaseID = guest.PurchaseID
		}
		if guest.PurchaseID != purchaseID {
			return nil, apperrors.NewValidationError("package_guest_id", "guest does not belong to this purchase")
		}
	}
	if purchaseID == uuid.Nil {
		return nil, apperrors.NewValidationError("purchase_id", "is required")
	}

	var result *model.RedemptionResult
	now := s.now()

	err = s.packages.WithPurchaseLock(ctx, purchaseID, func(ctx context.Context, tx repository.PurchaseLedgerTx) error {
		purchase := tx.Purchase()
		if err := checkVenue("package purchase", purchase.VenueID, req.VenueID); err != nil {
			return err
		}
		if !purchase.Status.IsRedeemable() {
			return &apperrors.PurchaseNotActiveError{
				PurchaseID: purchase.ID.String(),
				Status:     string(purchase.Status),
			}
		}

		items, err := tx.Items(ctx)
		if err != nil {
			return err
		}
		itemsByID := make(map[uuid.UUID]*model.PackageItem, len(items))
		for _, item := range items {
			itemsByID[item.ID] = item
		}

		totals, err := tx.RedeemedTotals(ctx)
		if err != nil {
			return err
		}

		// 先全部驗證，再寫入
		for _, line := range lines {
			item, ok := itemsByID[line.ItemID]
			if !ok {
				return &apperrors.ItemNotFoundError{ItemID: line.ItemID.String()}
			}
			if !item.IsCountable() {
				continue
			}
			if remaining := model.Remaining(item, totals[item.ID]); line.Quantity > remaining {
				return &apperrors.InsufficientAllotmentError{
					ItemID:    item.ID.String(),
					ItemName:  item.Name,
					Requested: line.Quantity,
					Remaining: remaining,
				}
			}
		}

		redemptions := make([]*model.PackageRedemption, 0, len(lines))
		for _, line := range lines {
			redemption := &model.PackageRedemption{
				PackageItemID:  line.ItemID,
				PackageGuestID: req.PackageGuestID,
				Quantity:       line.Quantity,
				OperatorID:     req.OperatorID,
				RedeemedAt:     now,
			}
			if err := tx.InsertRedemption(ctx, redemption); err != nil {
				return err
			}
			totals[line.ItemID] += line.Quantity
			redemptions = append(redemptions, redemption)
		}

		previous := purchase.Status
		status := model.RollupPurchaseStatus(previous, items, totals)
		if err := tx.UpdatePurchaseStatus(ctx, status); err != nil {
			return err
		}

		result = &model.RedemptionResult{
			PurchaseID:     purchase.ID,
			Status:         status,
			PreviousStatus: previous,
			Redemptions:    redemptions,
			Balances:       model.BuildBalances(items, totals),
		}

		if req.PackageGuestID != nil {
			guestTotals, err := tx.GuestRedeemedTotals(ctx, *req.PackageGuestID)
			if err != nil {
				return err
			}
			guestStatus := model.RollupGuestStatus(items, guestTotals, purchase.GuestCount)
			if err := tx.UpdateGuestStatus(ctx, *req.PackageGuestID, guestStatus); err != nil {
				return err
			}
			result.GuestID = req.PackageGuestID
			result.GuestStatus = &guestStatus
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := model.NewLedgerEvent(model.EventPackageRedeemed, req.VenueID, result.PurchaseID, req.OperatorID, now)
	event.Attributes["status"] = string(result.Status)
	event.Attributes["previous_status"] = string(result.PreviousStatus)
	event.Attributes["lines"] = strconv.Itoa(len(result.Redemptions))
	if result.GuestID != nil {
		event.Attributes["package_guest_id"] = result.GuestID.String()
	}
	publish(ctx, s.events, "redemption", event)

	return result, nil
}

// maxLineQuantity 與 package_redemptions.quantity (INT) 一致
const maxLineQuantity = math.MaxInt32

// mergeLines 同一項目的多行合併，保留第一次出現的順序
func mergeLines(lines []model.RedemptionLine) ([]model.RedemptionLine, error) {
	if len(lines) == 0 {
		return nil, apperrors.NewValidationError("lines", "at least one line is required")
	}

	merged := make([]model.RedemptionLine, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for i, line := range lines {
		if line.ItemID == uuid.Nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("lines[%d].item_id", i), "is required")
		}
		if line.Quantity <= 0 || line.Quantity > maxLineQuantity {
			return nil, apperrors.NewValidationError(fmt.Sprintf("lines[%d].quantity", i),
				fmt.Sprintf("must be between 1 and %d", maxLineQuantity))
		}
		if at, ok := index[line.ItemID]; ok {
			if merged[at].Quantity > maxLineQuantity-line.Quantity {
				return nil, apperrors.NewValidationError(fmt.Sprintf("lines[%d].quantity", i),
					fmt.Sprintf("total for item %s exceeds %d", line.ItemID, maxLineQuantity))
			}
			merged[at].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func (s *RedemptionServiceImpl) GetPurchaseBalance(ctx context.Context, venueID, purchaseID uuid.UUID) (*model.PurchaseBalance, error) {
	purchase, err := s.findPurchase(ctx, venueID, purchaseID)
	if err != nil {
		return nil, err
	}
	items, err := s.packages.ListItems(ctx, purchase.PackageID)
	if err != nil {
		return nil, err
	}
	totals, err := s.packages.RedeemedTotals(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}

	return &model.PurchaseBalance{
		PurchaseID: purchase.ID,
		Status:     purchase.Status,
		Items:      model.BuildBalances(items, totals),
	}, nil
}

func (s *RedemptionServiceImpl) ListRedemptions(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageRedemption, error) {
	if _, err := s.findPurchase(ctx, venueID, purchaseID); err != nil {
		return nil, err
	}
	return s.packages.ListRedemptions(ctx, purchaseID)
}

func (s *RedemptionServiceImpl) ListPackageGuests(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageGuest, error) {
	if _, err := s.findPurchase(ctx, venueID, purchaseID); err != nil {
		return nil, err
	}
	return s.packages.ListGuests(ctx, purchaseID)
}

func (s *RedemptionServiceImpl) EnsurePrimaryPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error) {
	if _, err := s.findPurchase(ctx, venueID, purchaseID); err != nil {
		return nil, err
	}

	return withScanCode(model.PackageGuestCodePrefix, func(code string) (*model.PackageGuest, error) {
		guest, _, err := s.packages.EnsurePrimaryGuest(ctx, purchaseID, identity, code)
		return guest, err
	})
}

func (s *RedemptionServiceImpl) AddPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error) {
	purchase, err := s.findPurchase(ctx, venueID, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.Status == model.PurchaseStatusCancelled || purchase.Status == model.PurchaseStatusExpired {
		return nil, &apperrors.PurchaseNotActiveError{PurchaseID: purchase.ID.String(), Status: string(purchase.Status)}
	}

	return withScanCode(model.PackageGuestCodePrefix, func(code string) (*model.PackageGuest, error) {
		return s.packages.AddGuest(ctx, purchaseID, identity, code)
	})
}

func (s *RedemptionServiceImpl) findPurchase(ctx context.Context, venueID, purchaseID uuid.UUID) (*model.PackagePurchase, error) {
	purchase, err := s.packages.FindPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if err := checkVenue("package purchase", purchase.VenueID, venueID); err != nil {
		return nil, err
	}
	return purchase, nil
}
