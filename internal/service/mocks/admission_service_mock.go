package mocks

import (
	"context"

	"venue-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type AdmissionServiceMock struct {
	mock.Mock
}

func NewAdmissionServiceMock() *AdmissionServiceMock {
	return &AdmissionServiceMock{}
}

func (m *AdmissionServiceMock) CheckIn(ctx context.Context, venueID, guestID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error) {
	args := m.Called(ctx, venueID, guestID, operatorID, spend)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckInResult), args.Error(1)
}

func (m *AdmissionServiceMock) MarkNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error) {
	args := m.Called(ctx, venueID, guestID, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingGuest), args.Error(1)
}

func (m *AdmissionServiceMock) UndoNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error) {
	args := m.Called(ctx, venueID, guestID, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingGuest), args.Error(1)
}

func (m *AdmissionServiceMock) BulkMarkNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.BulkNoShowResult, error) {
	args := m.Called(ctx, venueID, bookingID, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BulkNoShowResult), args.Error(1)
}

func (m *AdmissionServiceMock) CheckInBooking(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error) {
	args := m.Called(ctx, venueID, bookingID, operatorID, spend)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckInResult), args.Error(1)
}

func (m *AdmissionServiceMock) MarkBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error) {
	args := m.Called(ctx, venueID, bookingID, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *AdmissionServiceMock) UndoBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error) {
	args := m.Called(ctx, venueID, bookingID, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *AdmissionServiceMock) GetAdmissionSummary(ctx context.Context, venueID, bookingID uuid.UUID) (*model.AdmissionSummary, error) {
	args := m.Called(ctx, venueID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdmissionSummary), args.Error(1)
}

func (m *AdmissionServiceMock) ListGuests(ctx context.Context, venueID, bookingID uuid.UUID) ([]*model.BookingGuest, error) {
	args := m.Called(ctx, venueID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.BookingGuest), args.Error(1)
}

func (m *AdmissionServiceMock) EnsurePrimaryGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error) {
	args := m.Called(ctx, venueID, bookingID, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingGuest), args.Error(1)
}

func (m *AdmissionServiceMock) AddGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error) {
	args := m.Called(ctx, venueID, bookingID, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingGuest), args.Error(1)
}

func (m *AdmissionServiceMock) RemoveGuest(ctx context.Context, venueID, guestID uuid.UUID) error {
	args := m.Called(ctx, venueID, guestID)
	return args.Error(0)
}
