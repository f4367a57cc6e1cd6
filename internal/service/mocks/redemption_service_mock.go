package mocks

import (
	"context"

	"venue-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type RedemptionServiceMock struct {
	mock.Mock
}

func NewRedemptionServiceMock() *RedemptionServiceMock {
	return &RedemptionServiceMock{}
}

func (m *RedemptionServiceMock) RedeemItems(ctx context.Context, req model.RedeemRequest) (*model.RedemptionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RedemptionResult), args.Error(1)
}

func (m *RedemptionServiceMock) GetPurchaseBalance(ctx context.Context, venueID, purchaseID uuid.UUID) (*model.PurchaseBalance, error) {
	args := m.Called(ctx, venueID, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseBalance), args.Error(1)
}

func (m *RedemptionServiceMock) ListRedemptions(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageRedemption, error) {
	args := m.Called(ctx, venueID, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PackageRedemption), args.Error(1)
}

func (m *RedemptionServiceMock) ListPackageGuests(ctx context.Context, venueID, purchaseID uuid.UUID) ([]*model.PackageGuest, error) {
	args := m.Called(ctx, venueID, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PackageGuest), args.Error(1)
}

func (m *RedemptionServiceMock) EnsurePrimaryPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error) {
	args := m.Called(ctx, venueID, purchaseID, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PackageGuest), args.Error(1)
}

func (m *RedemptionServiceMock) AddPackageGuest(ctx context.Context, venueID, purchaseID uuid.UUID, identity model.GuestIdentity) (*model.PackageGuest, error) {
	args := m.Called(ctx, venueID, purchaseID, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PackageGuest), args.Error(1)
}
