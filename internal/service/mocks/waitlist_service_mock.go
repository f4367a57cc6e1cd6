package mocks

import (
	"context"

	"venue-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type WaitlistServiceMock struct {
	mock.Mock
}

func NewWaitlistServiceMock() *WaitlistServiceMock {
	return &WaitlistServiceMock{}
}

func (m *WaitlistServiceMock) entry(args mock.Arguments) (*model.WaitlistEntry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WaitlistEntry), args.Error(1)
}

func (m *WaitlistServiceMock) entries(args mock.Arguments) ([]*model.WaitlistEntry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WaitlistEntry), args.Error(1)
}

func (m *WaitlistServiceMock) Join(ctx context.Context, venueID uuid.UUID, req model.JoinWaitlistRequest) (*model.WaitlistEntry, error) {
	return m.entry(m.Called(ctx, venueID, req))
}

func (m *WaitlistServiceMock) Notify(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	return m.entry(m.Called(ctx, venueID, entryID, operatorID))
}

func (m *WaitlistServiceMock) Seat(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	return m.entry(m.Called(ctx, venueID, entryID, operatorID))
}

func (m *WaitlistServiceMock) Remove(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	return m.entry(m.Called(ctx, venueID, entryID, operatorID))
}

func (m *WaitlistServiceMock) Get(ctx context.Context, venueID, entryID uuid.UUID) (*model.WaitlistEntry, error) {
	return m.entry(m.Called(ctx, venueID, entryID))
}

func (m *WaitlistServiceMock) List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	return m.entries(m.Called(ctx, venueID, statuses))
}

func (m *WaitlistServiceMock) ListStale(ctx context.Context, venueID uuid.UUID) ([]*model.WaitlistEntry, error) {
	return m.entries(m.Called(ctx, venueID))
}

func (m *WaitlistServiceMock) EstimateWait(ctx context.Context, venueID uuid.UUID, entryID *uuid.UUID) (*model.WaitEstimate, error) {
	args := m.Called(ctx, venueID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WaitEstimate), args.Error(1)
}
