package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"venue-ledger/config"
	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"
	"venue-ledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdmissionService interface {
	// Guest 層級
	CheckIn(ctx context.Context, venueID, guestID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error)
	MarkNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error)
	UndoNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error)
	// BulkMarkNoShow 剩下的 pending guest 全部標記 no-show，個別失敗不中斷
	BulkMarkNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.BulkNoShowResult, error)

	// 沒有 guest 的訂位
	CheckInBooking(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error)
	MarkBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error)
	UndoBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error)

	GetAdmissionSummary(ctx context.Context, venueID, bookingID uuid.UUID) (*model.AdmissionSummary, error)
	ListGuests(ctx context.Context, venueID, bookingID uuid.UUID) ([]*model.BookingGuest, error)
	EnsurePrimaryGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error)
	AddGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error)
	RemoveGuest(ctx context.Context, venueID, guestID uuid.UUID) error
}

type AdmissionServiceImpl struct {
	bookings    repository.BookingRepository
	posSessions repository.POSSessionRepository
	events      EventPublisher
	undoWindow  time.Duration
	now         func() time.Time
}

func NewAdmissionService(
	bookings repository.BookingRepository,
	posSessions repository.POSSessionRepository,
	events EventPublisher,
	cfg config.LedgerConfig,
	opts ...Option,
) AdmissionService {
	o := buildOptions(opts)
	undoWindow := cfg.UndoWindow
	if undoWindow <= 0 {
		undoWindow = config.DefaultLedgerConfig().UndoWindow
	}
	return &AdmissionServiceImpl{
		bookings:    bookings,
		posSessions: posSessions,
		events:      events,
		undoWindow:  undoWindow,
		now:         o.now,
	}
}

func (s *AdmissionServiceImpl) CheckIn(ctx context.Context, venueID, guestID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error) {
	if spend != nil && *spend < 0 {
		return nil, apperrors.NewValidationError("spend", "must not be negative")
	}

	guest, booking, err := s.loadGuest(ctx, venueID, guestID)
	if err != nil {
		return nil, err
	}
	if guest.CheckInStatus != model.CheckInStatusPending {
		return nil, alreadyResolved(guest.ID, guest.CheckInStatus, "")
	}

	now := s.now()
	updated, err := s.bookings.TransitionGuest(ctx, guestID, model.AdmissionTransition{
		VenueID: venueID,
		From:    model.CheckInStatusPending,
		To:      model.CheckInStatusCheckedIn,
		At:      now,
		Spend:   spend,
	})
	if err != nil {
		return nil, s.classifyGuestConflict(ctx, guestID, model.CheckInStatusCheckedIn, err)
	}

	event := model.NewLedgerEvent(model.EventGuestCheckedIn, venueID, updated.ID, operatorID, now)
	event.Attributes["booking_id"] = updated.BookingID.String()
	event.Attributes["guest_number"] = strconv.Itoa(updated.GuestNumber)
	publish(ctx, s.events, "admission", event)

	result := &model.CheckInResult{Guest: updated, Booking: booking}
	s.attachPOSSession(ctx, result, venueID, booking.ID, operatorID)
	return result, nil
}

func (s *AdmissionServiceImpl) MarkNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error) {
	guest, _, err := s.loadGuest(ctx, venueID, guestID)
	if err != nil {
		return nil, err
	}
	if guest.CheckInStatus != model.CheckInStatusPending {
		return nil, alreadyResolved(guest.ID, guest.CheckInStatus, "")
	}

	return s.markGuestNoShow(ctx, venueID, guestID, operatorID)
}

func (s *AdmissionServiceImpl) markGuestNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error) {
	now := s.now()
	updated, err := s.bookings.TransitionGuest(ctx, guestID, model.AdmissionTransition{
		VenueID: venueID,
		From:    model.CheckInStatusPending,
		To:      model.CheckInStatusNoShow,
		At:      now,
	})
	if err != nil {
		return nil, s.classifyGuestConflict(ctx, guestID, model.CheckInStatusNoShow, err)
	}

	event := model.NewLedgerEvent(model.EventGuestNoShow, venueID, updated.ID, operatorID, now)
	event.Attributes["booking_id"] = updated.BookingID.String()
	event.Attributes["undo_until"] = now.Add(s.undoWindow).Format(time.RFC3339Nano)
	publish(ctx, s.events, "admission", event)

	return updated, nil
}

// UndoNoShow 只在 undo window 內把 no_show 還原為 pending；過期後 no_show 即為終止狀態
func (s *AdmissionServiceImpl) UndoNoShow(ctx context.Context, venueID, guestID uuid.UUID, operatorID string) (*model.BookingGuest, error) {
	guest, _, err := s.loadGuest(ctx, venueID, guestID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.checkUndoable(guest.ID, guest.CheckInStatus, guest.NoShowAt, now); err != nil {
		return nil, err
	}

	after := now.Add(-s.undoWindow)
	updated, err := s.bookings.TransitionGuest(ctx, guestID, model.AdmissionTransition{
		VenueID:     venueID,
		From:        model.CheckInStatusNoShow,
		To:          model.CheckInStatusPending,
		At:          now,
		NoShowAfter: &after,
	})
	if err != nil {
		return nil, s.classifyGuestConflict(ctx, guestID, model.CheckInStatusPending, err)
	}

	event := model.NewLedgerEvent(model.EventGuestNoShowUndone, venueID, updated.ID, operatorID, now)
	event.Attributes["booking_id"] = updated.BookingID.String()
	publish(ctx, s.events, "admission", event)

	return updated, nil
}

func (s *AdmissionServiceImpl) BulkMarkNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.BulkNoShowResult, error) {
	if _, err := s.loadBooking(ctx, venueID, bookingID); err != nil {
		return nil, err
	}

	guests, err := s.bookings.ListGuests(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(guests) == 0 {
		return nil, apperrors.NewValidationError("booking", "booking has no guests; mark the booking itself as no-show")
	}

	log := logger.WithVenue("admission", venueID.String(), operatorID).With(zap.String("booking_id", bookingID.String()))
	result := &model.BulkNoShowResult{BookingID: bookingID, Outcomes: make([]model.GuestOutcome, 0, len(guests))}

	for _, guest := range guests {
		if guest.CheckInStatus != model.CheckInStatusPending {
			continue
		}

		outcome := model.GuestOutcome{GuestID: guest.ID, GuestNumber: guest.GuestNumber}
		updated, err := s.markGuestNoShow(ctx, venueID, guest.ID, operatorID)
		if err != nil {
			log.Warn("bulk no-show: guest failed", zap.String("guest_id", guest.ID.String()), zap.Error(err))
			outcome.Error = err.Error()
			outcome.Status = guest.CheckInStatus
			var resolved *apperrors.AlreadyResolvedError
			if errors.As(err, &resolved) {
				outcome.Status = model.CheckInStatus(resolved.Status)
			}
			result.Failed++
		} else {
			outcome.Succeeded = true
			outcome.Status = updated.CheckInStatus
			result.Succeeded++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}

func (s *AdmissionServiceImpl) CheckInBooking(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string, spend *float64) (*model.CheckInResult, error) {
	if spend != nil && *spend < 0 {
		return nil, apperrors.NewValidationError("spend", "must not be negative")
	}

	booking, err := s.loadUngroupedBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CheckInStatus != model.CheckInStatusPending {
		return nil, alreadyResolved(booking.ID, booking.CheckInStatus, "")
	}

	now := s.now()
	updated, err := s.bookings.TransitionBooking(ctx, bookingID, model.AdmissionTransition{
		VenueID: venueID,
		From:    model.CheckInStatusPending,
		To:      model.CheckInStatusCheckedIn,
		At:      now,
		Spend:   spend,
	})
	if err != nil {
		return nil, s.classifyBookingConflict(ctx, bookingID, model.CheckInStatusCheckedIn, err)
	}

	publish(ctx, s.events, "admission",
		model.NewLedgerEvent(model.EventBookingCheckedIn, venueID, updated.ID, operatorID, now))

	result := &model.CheckInResult{Booking: updated}
	s.attachPOSSession(ctx, result, venueID, updated.ID, operatorID)
	return result, nil
}

func (s *AdmissionServiceImpl) MarkBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error) {
	booking, err := s.loadUngroupedBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CheckInStatus != model.CheckInStatusPending {
		return nil, alreadyResolved(booking.ID, booking.CheckInStatus, "")
	}

	now := s.now()
	updated, err := s.bookings.TransitionBooking(ctx, bookingID, model.AdmissionTransition{
		VenueID: venueID,
		From:    model.CheckInStatusPending,
		To:      model.CheckInStatusNoShow,
		At:      now,
	})
	if err != nil {
		return nil, s.classifyBookingConflict(ctx, bookingID, model.CheckInStatusNoShow, err)
	}

	event := model.NewLedgerEvent(model.EventBookingNoShow, venueID, updated.ID, operatorID, now)
	event.Attributes["undo_until"] = now.Add(s.undoWindow).Format(time.RFC3339Nano)
	publish(ctx, s.events, "admission", event)

	return updated, nil
}

func (s *AdmissionServiceImpl) UndoBookingNoShow(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.Booking, error) {
	booking, err := s.loadUngroupedBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.checkUndoable(booking.ID, booking.CheckInStatus, booking.NoShowAt, now); err != nil {
		return nil, err
	}

	after := now.Add(-s.undoWindow)
	updated, err := s.bookings.TransitionBooking(ctx, bookingID, model.AdmissionTransition{
		VenueID:     venueID,
		From:        model.CheckInStatusNoShow,
		To:          model.CheckInStatusPending,
		At:          now,
		NoShowAfter: &after,
	})
	if err != nil {
		return nil, s.classifyBookingConflict(ctx, bookingID, model.CheckInStatusPending, err)
	}

	publish(ctx, s.events, "admission",
		model.NewLedgerEvent(model.EventBookingNoShowUndone, venueID, updated.ID, operatorID, now))

	return updated, nil
}

func (s *AdmissionServiceImpl) GetAdmissionSummary(ctx context.Context, venueID, bookingID uuid.UUID) (*model.AdmissionSummary, error) {
	booking, err := s.findBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	guests, err := s.bookings.ListGuests(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	summary := model.SummarizeAdmission(booking, guests)
	return &summary, nil
}

func (s *AdmissionServiceImpl) ListGuests(ctx context.Context, venueID, bookingID uuid.UUID) ([]*model.BookingGuest, error) {
	if _, err := s.findBooking(ctx, venueID, bookingID); err != nil {
		return nil, err
	}
	return s.bookings.ListGuests(ctx, bookingID)
}

func (s *AdmissionServiceImpl) EnsurePrimaryGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error) {
	if _, err := s.loadBooking(ctx, venueID, bookingID); err != nil {
		return nil, err
	}

	return withScanCode(model.BookingGuestCodePrefix, func(code string) (*model.BookingGuest, error) {
		guest, _, err := s.bookings.EnsurePrimaryGuest(ctx, bookingID, identity, code)
		return guest, err
	})
}

// AddGuest 第一位 guest 自動成為 primary；guest 數不超過 party size
func (s *AdmissionServiceImpl) AddGuest(ctx context.Context, venueID, bookingID uuid.UUID, identity model.GuestIdentity) (*model.BookingGuest, error) {
	booking, err := s.loadBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CheckInStatus != model.CheckInStatusPending {
		return nil, apperrors.NewValidationError("booking", fmt.Sprintf("booking is already %s at booking level", booking.CheckInStatus))
	}

	return withScanCode(model.BookingGuestCodePrefix, func(code string) (*model.BookingGuest, error) {
		return s.bookings.AddGuest(ctx, bookingID, identity, code)
	})
}

func (s *AdmissionServiceImpl) RemoveGuest(ctx context.Context, venueID, guestID uuid.UUID) error {
	guest, err := s.bookings.FindGuestByID(ctx, guestID)
	if err != nil {
		return err
	}
	if err := checkVenue("booking guest", guest.VenueID, venueID); err != nil {
		return err
	}
	if guest.IsPrimary {
		return apperrors.NewValidationError("guest", "primary guest cannot be removed")
	}
	if guest.CheckInStatus != model.CheckInStatusPending {
		return alreadyResolved(guest.ID, guest.CheckInStatus, "only pending guests can be removed")
	}

	err = s.bookings.RemoveGuest(ctx, guestID)
	if errors.Is(err, apperrors.ErrConditionFailed) {
		current, findErr := s.bookings.FindGuestByID(ctx, guestID)
		if findErr != nil {
			return findErr
		}
		return alreadyResolved(current.ID, current.CheckInStatus, "only pending guests can be removed")
	}
	return err
}

// attachPOSSession 開單失敗不回滾入場，只記 log
func (s *AdmissionServiceImpl) attachPOSSession(ctx context.Context, result *model.CheckInResult, venueID, bookingID uuid.UUID, operatorID string) {
	if s.posSessions == nil {
		return
	}

	session, created, err := s.posSessions.OpenIfAbsent(ctx, venueID, bookingID, operatorID)
	if err != nil {
		logger.WithVenue("admission", venueID.String(), operatorID).Warn("open pos session failed",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return
	}

	result.POSSession = session
	result.POSSessionCreated = created
	if created {
		event := model.NewLedgerEvent(model.EventPOSSessionOpened, venueID, bookingID, operatorID, session.OpenedAt)
		event.Attributes["pos_session_id"] = session.ID.String()
		publish(ctx, s.events, "admission", event)
	}
}

func (s *AdmissionServiceImpl) findBooking(ctx context.Context, venueID, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkVenue("booking", booking.VenueID, venueID); err != nil {
		return nil, err
	}
	return booking, nil
}

// loadBooking 取消或被拒絕的訂位不能做任何入場操作
func (s *AdmissionServiceImpl) loadBooking(ctx context.Context, venueID, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsAdmittable() {
		return nil, apperrors.NewValidationError("booking", fmt.Sprintf("booking is %s", booking.Status))
	}
	return booking, nil
}

func (s *AdmissionServiceImpl) loadUngroupedBooking(ctx context.Context, venueID, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.loadBooking(ctx, venueID, bookingID)
	if err != nil {
		return nil, err
	}
	guests, err := s.bookings.ListGuests(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(guests) > 0 {
		return nil, apperrors.NewValidationError("booking", "booking has guests; admit each guest individually")
	}
	return booking, nil
}

func (s *AdmissionServiceImpl) loadGuest(ctx context.Context, venueID, guestID uuid.UUID) (*model.BookingGuest, *model.Booking, error) {
	guest, err := s.bookings.FindGuestByID(ctx, guestID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkVenue("booking guest", guest.VenueID, venueID); err != nil {
		return nil, nil, err
	}
	booking, err := s.loadBooking(ctx, venueID, guest.BookingID)
	if err != nil {
		return nil, nil, err
	}
	return guest, booking, nil
}

func (s *AdmissionServiceImpl) checkUndoable(id uuid.UUID, status model.CheckInStatus, noShowAt *time.Time, now time.Time) error {
	switch status {
	case model.CheckInStatusNoShow:
		if noShowAt == nil || now.Sub(*noShowAt) >= s.undoWindow {
			return alreadyResolved(id, status, "undo window expired")
		}
		return nil
	case model.CheckInStatusPending:
		return apperrors.NewValidationError("check_in_status", "not marked as no-show")
	default:
		return alreadyResolved(id, status, "")
	}
}

// classifyGuestConflict 條件更新落空時重新讀取，轉成呼叫端看得懂的錯誤
func (s *AdmissionServiceImpl) classifyGuestConflict(ctx context.Context, guestID uuid.UUID, target model.CheckInStatus, err error) error {
	if !errors.Is(err, apperrors.ErrConditionFailed) {
		return err
	}
	current, findErr := s.bookings.FindGuestByID(ctx, guestID)
	if findErr != nil {
		return findErr
	}
	return conflictError(current.ID, current.CheckInStatus, target)
}

func (s *AdmissionServiceImpl) classifyBookingConflict(ctx context.Context, bookingID uuid.UUID, target model.CheckInStatus, err error) error {
	if !errors.Is(err, apperrors.ErrConditionFailed) {
		return err
	}
	current, findErr := s.bookings.FindByID(ctx, bookingID)
	if findErr != nil {
		return findErr
	}
	guests, listErr := s.bookings.ListGuests(ctx, bookingID)
	if listErr == nil && len(guests) > 0 {
		return apperrors.NewValidationError("booking", "booking has guests; admit each guest individually")
	}
	return conflictError(current.ID, current.CheckInStatus, target)
}

func conflictError(id uuid.UUID, current, target model.CheckInStatus) error {
	switch {
	case target == model.CheckInStatusPending && current == model.CheckInStatusNoShow:
		return alreadyResolved(id, current, "undo window expired")
	case target == model.CheckInStatusPending && current == model.CheckInStatusPending:
		return apperrors.NewValidationError("check_in_status", "not marked as no-show")
	default:
		return alreadyResolved(id, current, "")
	}
}

func alreadyResolved(id uuid.UUID, status model.CheckInStatus, reason string) error {
	return &apperrors.AlreadyResolvedError{
		EntityID: id.String(),
		Status:   string(status),
		Reason:   reason,
	}
}
