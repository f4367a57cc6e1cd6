package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"venue-ledger/config"
	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
)

type WaitlistService interface {
	Join(ctx context.Context, venueID uuid.UUID, req model.JoinWaitlistRequest) (*model.WaitlistEntry, error)
	Notify(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error)
	Seat(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error)
	Remove(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error)
	Get(ctx context.Context, venueID, entryID uuid.UUID) (*model.WaitlistEntry, error)
	List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error)
	// ListStale 已通知但過期未入座；不改變狀態，是否自動移除由呼叫端決定
	ListStale(ctx context.Context, venueID uuid.UUID) ([]*model.WaitlistEntry, error)
	// EstimateWait entryID 為 nil 時估算新加入者的等待時間
	EstimateWait(ctx context.Context, venueID uuid.UUID, entryID *uuid.UUID) (*model.WaitEstimate, error)
}

type WaitlistServiceImpl struct {
	waitlist        repository.WaitlistRepository
	turnover        TurnoverStrategy
	events          EventPublisher
	notifyExpiry    time.Duration
	defaultTurnover time.Duration
	now             func() time.Time
}

func NewWaitlistService(
	waitlist repository.WaitlistRepository,
	turnover TurnoverStrategy,
	events EventPublisher,
	cfg config.LedgerConfig,
	opts ...Option,
) WaitlistService {
	o := buildOptions(opts)
	def := config.DefaultLedgerConfig()
	if cfg.NotifyExpiry <= 0 {
		cfg.NotifyExpiry = def.NotifyExpiry
	}
	if cfg.DefaultTurnover <= 0 {
		cfg.DefaultTurnover = def.DefaultTurnover
	}
	if turnover == nil {
		turnover = NewNotifyLatencyStrategy(waitlist, cfg.TurnoverSampleSize)
	}
	return &WaitlistServiceImpl{
		waitlist:        waitlist,
		turnover:        turnover,
		events:          events,
		notifyExpiry:    cfg.NotifyExpiry,
		defaultTurnover: cfg.DefaultTurnover,
		now:             o.now,
	}
}

func (s *WaitlistServiceImpl) Join(ctx context.Context, venueID uuid.UUID, req model.JoinWaitlistRequest) (*model.WaitlistEntry, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "is required")
	}
	if req.PartySize <= 0 {
		return nil, apperrors.NewValidationError("party_size", "must be positive")
	}

	now := s.now()
	entry, err := s.waitlist.Create(ctx, &model.WaitlistEntry{
		VenueID:   venueID,
		UserID:    req.UserID,
		Name:      name,
		PartySize: req.PartySize,
		Phone:     req.Phone,
		Email:     req.Email,
		Notes:     req.Notes,
		Status:    model.WaitlistStatusWaiting,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	event := model.NewLedgerEvent(model.EventWaitlistJoined, venueID, entry.ID, "", now)
	event.Attributes["party_size"] = strconv.Itoa(entry.PartySize)
	publish(ctx, s.events, "waitlist", event)

	return entry, nil
}

// Notify 只允許從 waiting；期限為 notified_at + NotifyExpiry
func (s *WaitlistServiceImpl) Notify(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	now := s.now()
	expires := now.Add(s.notifyExpiry)

	entry, err := s.transition(ctx, venueID, entryID, repository.WaitlistTransition{
		VenueID:   venueID,
		Action:    model.WaitlistActionNotify,
		At:        now,
		ExpiresAt: &expires,
	})
	if err != nil {
		return nil, err
	}

	event := model.NewLedgerEvent(model.EventWaitlistNotified, venueID, entry.ID, operatorID, now)
	event.Attributes["name"] = entry.Name
	event.Attributes["party_size"] = strconv.Itoa(entry.PartySize)
	event.Attributes["expires_at"] = expires.Format(time.RFC3339Nano)
	if entry.Phone != nil {
		event.Attributes["phone"] = *entry.Phone
	}
	if entry.Email != nil {
		event.Attributes["email"] = *entry.Email
	}
	publish(ctx, s.events, "waitlist", event)

	return entry, nil
}

func (s *WaitlistServiceImpl) Seat(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	now := s.now()
	entry, err := s.transition(ctx, venueID, entryID, repository.WaitlistTransition{
		VenueID: venueID,
		Action:  model.WaitlistActionSeat,
		At:      now,
	})
	if err != nil {
		return nil, err
	}

	event := model.NewLedgerEvent(model.EventWaitlistSeated, venueID, entry.ID, operatorID, now)
	event.Attributes["created_at"] = entry.CreatedAt.Format(time.RFC3339Nano)
	event.Attributes["seated_at"] = now.Format(time.RFC3339Nano)
	if latency, ok := entry.NotifyLatency(); ok {
		event.Attributes["notified_at"] = entry.NotifiedAt.Format(time.RFC3339Nano)
		event.Attributes[attrNotifyLatencyMinutes] = strconv.FormatFloat(latency.Minutes(), 'f', -1, 64)
	}
	publish(ctx, s.events, "waitlist", event)

	return entry, nil
}

func (s *WaitlistServiceImpl) Remove(ctx context.Context, venueID, entryID uuid.UUID, operatorID string) (*model.WaitlistEntry, error) {
	now := s.now()
	entry, err := s.transition(ctx, venueID, entryID, repository.WaitlistTransition{
		VenueID: venueID,
		Action:  model.WaitlistActionRemove,
		At:      now,
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, "waitlist",
		model.NewLedgerEvent(model.EventWaitlistRemoved, venueID, entry.ID, operatorID, now))

	return entry, nil
}

func (s *WaitlistServiceImpl) transition(ctx context.Context, venueID, entryID uuid.UUID, t repository.WaitlistTransition) (*model.WaitlistEntry, error) {
	entry, err := s.Get(ctx, venueID, entryID)
	if err != nil {
		return nil, err
	}
	if !t.Action.ValidFrom(entry.Status) {
		return nil, waitlistConflict(entry)
	}

	updated, err := s.waitlist.Transition(ctx, entryID, t)
	if err != nil {
		if !errors.Is(err, apperrors.ErrConditionFailed) {
			return nil, err
		}
		current, findErr := s.waitlist.FindByID(ctx, entryID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, waitlistConflict(current)
	}
	return updated, nil
}

func waitlistConflict(entry *model.WaitlistEntry) error {
	return &apperrors.AlreadyResolvedError{
		EntityID: entry.ID.String(),
		Status:   string(entry.Status),
	}
}

func (s *WaitlistServiceImpl) Get(ctx context.Context, venueID, entryID uuid.UUID) (*model.WaitlistEntry, error) {
	entry, err := s.waitlist.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := checkVenue("waitlist entry", entry.VenueID, venueID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *WaitlistServiceImpl) List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, apperrors.NewValidationError("status", "unknown waitlist status "+string(status))
		}
	}
	return s.waitlist.List(ctx, venueID, statuses)
}

func (s *WaitlistServiceImpl) ListStale(ctx context.Context, venueID uuid.UUID) ([]*model.WaitlistEntry, error) {
	return s.waitlist.ListStaleNotified(ctx, venueID, s.now())
}

func (s *WaitlistServiceImpl) EstimateWait(ctx context.Context, venueID uuid.UUID, entryID *uuid.UUID) (*model.WaitEstimate, error) {
	var position int
	if entryID != nil {
		entry, err := s.Get(ctx, venueID, *entryID)
		if err != nil {
			return nil, err
		}
		if entry.Status != model.WaitlistStatusWaiting || entry.Position == nil {
			return nil, apperrors.NewValidationError("entry_id", "entry is "+string(entry.Status)+", not waiting")
		}
		position = *entry.Position
	} else {
		waiting, err := s.waitlist.CountWaiting(ctx, venueID)
		if err != nil {
			return nil, err
		}
		position = waiting + 1
	}

	stats, err := s.turnover.Average(ctx, venueID)
	if err != nil {
		return nil, err
	}
	avg := stats.AvgMinutes
	if stats.Samples < 1 {
		avg = s.defaultTurnover.Minutes()
	}

	minutes := model.EstimateWaitMinutes(position, avg)
	return &model.WaitEstimate{
		EntryID:          entryID,
		Position:         position,
		AvgTurnoverMin:   avg,
		Samples:          stats.Samples,
		EstimatedMinutes: minutes,
		Display:          model.FormatWait(minutes),
	}, nil
}
