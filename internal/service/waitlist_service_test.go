package service

import (
	"context"
	"testing"
	"time"

	"venue-ledger/config"
	"venue-ledger/internal/cache"
	"venue-ledger/internal/model"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitlistFixture struct {
	svc      WaitlistService
	waitlist *fakeWaitlistRepo
	events   *recordingPublisher
	clock    *fakeClock
	venueID  uuid.UUID
}

func setupWaitlist(t *testing.T) *waitlistFixture {
	t.Helper()
	f := &waitlistFixture{
		waitlist: newFakeWaitlistRepo(),
		events:   &recordingPublisher{},
		clock:    newFakeClock(),
		venueID:  uuid.New(),
	}
	// turnover 為 nil 時使用 NotifyLatencyStrategy
	f.svc = NewWaitlistService(f.waitlist, nil, f.events, config.DefaultLedgerConfig(), WithClock(f.clock.Now))
	return f
}

func (f *waitlistFixture) join(t *testing.T, name string, partySize int) *model.WaitlistEntry {
	t.Helper()
	entry, err := f.svc.Join(context.Background(), f.venueID, model.JoinWaitlistRequest{Name: name, PartySize: partySize})
	require.NoError(t, err)
	return entry
}

func TestJoinWaitlist(t *testing.T) {
	ctx := context.Background()

	t.Run("Positions follow join order", func(t *testing.T) {
		f := setupWaitlist(t)

		first := f.join(t, "Chen", 2)
		second := f.join(t, "Lin", 4)

		assert.Equal(t, model.WaitlistStatusWaiting, first.Status)
		assert.Equal(t, 1, *first.Position)
		assert.Equal(t, 2, *second.Position)
		assert.Len(t, f.events.ofType(model.EventWaitlistJoined), 2)
	})

	t.Run("Name is trimmed and required", func(t *testing.T) {
		f := setupWaitlist(t)

		_, err := f.svc.Join(ctx, f.venueID, model.JoinWaitlistRequest{Name: "   ", PartySize: 2})
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		entry := f.join(t, "  Wang ", 2)
		assert.Equal(t, "Wang", entry.Name)
	})

	t.Run("Party size must be positive", func(t *testing.T) {
		f := setupWaitlist(t)

		_, err := f.svc.Join(ctx, f.venueID, model.JoinWaitlistRequest{Name: "Chen", PartySize: 0})

		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("Positions are per venue", func(t *testing.T) {
		f := setupWaitlist(t)
		f.join(t, "Chen", 2)

		other, err := f.svc.Join(ctx, uuid.New(), model.JoinWaitlistRequest{Name: "Lin", PartySize: 2})

		require.NoError(t, err)
		assert.Equal(t, 1, *other.Position)
	})
}

func TestWaitlistTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("Notify sets the expiry", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		f.clock.Advance(10 * time.Minute)

		notified, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")

		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusNotified, notified.Status)
		assert.Nil(t, notified.Position)
		assert.Equal(t, f.clock.Now().Add(15*time.Minute), *notified.ExpiresAt)

		events := f.events.ofType(model.EventWaitlistNotified)
		require.Len(t, events, 1)
		assert.Equal(t, "host-1", events[0].OperatorID)
	})

	t.Run("Notify twice is rejected", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		_, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")
		require.NoError(t, err)

		_, err = f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")

		var resolved *apperrors.AlreadyResolvedError
		require.ErrorAs(t, err, &resolved)
		assert.Equal(t, string(model.WaitlistStatusNotified), resolved.Status)
	})

	t.Run("Seat directly from waiting", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)

		seated, err := f.svc.Seat(ctx, f.venueID, entry.ID, "host-1")

		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusSeated, seated.Status)

		events := f.events.ofType(model.EventWaitlistSeated)
		require.Len(t, events, 1)
		_, hasLatency := events[0].Attributes[attrNotifyLatencyMinutes]
		assert.False(t, hasLatency)
	})

	t.Run("Seat after notify carries the notify latency", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		f.clock.Advance(20 * time.Minute)
		_, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")
		require.NoError(t, err)
		f.clock.Advance(5 * time.Minute)

		_, err = f.svc.Seat(ctx, f.venueID, entry.ID, "host-1")

		require.NoError(t, err)
		events := f.events.ofType(model.EventWaitlistSeated)
		require.Len(t, events, 1)
		assert.Equal(t, "20", events[0].Attributes[attrNotifyLatencyMinutes])
	})

	t.Run("Terminal entries cannot move", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		_, err := f.svc.Remove(ctx, f.venueID, entry.ID, "host-1")
		require.NoError(t, err)

		_, err = f.svc.Seat(ctx, f.venueID, entry.ID, "host-1")
		assert.ErrorIs(t, err, apperrors.ErrAlreadyResolved)

		_, err = f.svc.Remove(ctx, f.venueID, entry.ID, "host-1")
		assert.ErrorIs(t, err, apperrors.ErrAlreadyResolved)
	})

	t.Run("Remove a notified entry", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		_, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")
		require.NoError(t, err)

		removed, err := f.svc.Remove(ctx, f.venueID, entry.ID, "host-1")

		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusRemoved, removed.Status)
		assert.NotNil(t, removed.RemovedAt)
	})

	t.Run("Wrong venue", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)

		_, err := f.svc.Notify(ctx, uuid.New(), entry.ID, "host-1")

		assert.ErrorIs(t, err, apperrors.ErrWrongVenue)
	})

	t.Run("Unknown entry", func(t *testing.T) {
		f := setupWaitlist(t)

		_, err := f.svc.Seat(ctx, f.venueID, uuid.New(), "host-1")

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("Positions close up after seating", func(t *testing.T) {
		f := setupWaitlist(t)
		first := f.join(t, "Chen", 2)
		second := f.join(t, "Lin", 2)

		_, err := f.svc.Seat(ctx, f.venueID, first.ID, "host-1")
		require.NoError(t, err)

		current, err := f.svc.Get(ctx, f.venueID, second.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, *current.Position)
	})
}

func TestListWaitlist(t *testing.T) {
	ctx := context.Background()
	f := setupWaitlist(t)
	waiting := f.join(t, "Chen", 2)
	notified := f.join(t, "Lin", 2)
	_, err := f.svc.Notify(ctx, f.venueID, notified.ID, "host-1")
	require.NoError(t, err)

	t.Run("All statuses", func(t *testing.T) {
		entries, err := f.svc.List(ctx, f.venueID, nil)

		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("Filter by status", func(t *testing.T) {
		entries, err := f.svc.List(ctx, f.venueID, []model.WaitlistStatus{model.WaitlistStatusWaiting})

		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, waiting.ID, entries[0].ID)
	})

	t.Run("Unknown status", func(t *testing.T) {
		_, err := f.svc.List(ctx, f.venueID, []model.WaitlistStatus{"cancelled"})

		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestListStale(t *testing.T) {
	ctx := context.Background()
	f := setupWaitlist(t)
	entry := f.join(t, "Chen", 2)
	_, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	stale, err := f.svc.ListStale(ctx, f.venueID)
	require.NoError(t, err)
	assert.Empty(t, stale)

	f.clock.Advance(time.Second)
	stale, err = f.svc.ListStale(ctx, f.venueID)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, entry.ID, stale[0].ID)

	// 只回報，不改狀態
	current, err := f.svc.Get(ctx, f.venueID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusNotified, current.Status)
}

func TestEstimateWait(t *testing.T) {
	ctx := context.Background()

	t.Run("Default turnover without samples", func(t *testing.T) {
		f := setupWaitlist(t)
		f.join(t, "Chen", 2)
		f.join(t, "Lin", 2)
		third := f.join(t, "Wang", 2)

		estimate, err := f.svc.EstimateWait(ctx, f.venueID, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, estimate.Position)
		assert.Equal(t, 0, estimate.Samples)
		assert.Equal(t, 15.0, estimate.AvgTurnoverMin)
		assert.Equal(t, 60, estimate.EstimatedMinutes)
		assert.Equal(t, "~1 hr", estimate.Display)

		estimate, err = f.svc.EstimateWait(ctx, f.venueID, &third.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, estimate.Position)
		assert.Equal(t, 45, estimate.EstimatedMinutes)
		assert.Equal(t, "~45 min", estimate.Display)
	})

	t.Run("Average of notified seatings", func(t *testing.T) {
		f := setupWaitlist(t)

		// 兩筆樣本：20 分、40 分
		a := f.join(t, "Chen", 2)
		f.clock.Advance(20 * time.Minute)
		_, err := f.svc.Notify(ctx, f.venueID, a.ID, "host-1")
		require.NoError(t, err)
		_, err = f.svc.Seat(ctx, f.venueID, a.ID, "host-1")
		require.NoError(t, err)

		b := f.join(t, "Lin", 2)
		f.clock.Advance(40 * time.Minute)
		_, err = f.svc.Notify(ctx, f.venueID, b.ID, "host-1")
		require.NoError(t, err)
		_, err = f.svc.Seat(ctx, f.venueID, b.ID, "host-1")
		require.NoError(t, err)

		// 未通知直接入座，不算樣本
		c := f.join(t, "Wang", 2)
		_, err = f.svc.Seat(ctx, f.venueID, c.ID, "host-1")
		require.NoError(t, err)

		f.join(t, "Huang", 2)
		last := f.join(t, "Wu", 2)

		estimate, err := f.svc.EstimateWait(ctx, f.venueID, &last.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, estimate.Samples)
		assert.Equal(t, 30.0, estimate.AvgTurnoverMin)
		assert.Equal(t, 60, estimate.EstimatedMinutes)

		estimate, err = f.svc.EstimateWait(ctx, f.venueID, nil)
		require.NoError(t, err)
		assert.Equal(t, 90, estimate.EstimatedMinutes)
		assert.Equal(t, "~1 hr 30 min", estimate.Display)
	})

	t.Run("Cached window covers only the latest seatings", func(t *testing.T) {
		f := setupWaitlist(t)
		turnoverCache := newFakeTurnoverCache(20)
		turnover := NewCachedTurnoverStrategy(turnoverCache, NewNotifyLatencyStrategy(f.waitlist, 20))
		svc := NewWaitlistService(f.waitlist, turnover, f.events, config.DefaultLedgerConfig(), WithClock(f.clock.Now))

		seat := func(entryID uuid.UUID) {
			_, err := svc.Seat(ctx, f.venueID, entryID, "host-1")
			require.NoError(t, err)
			seated := f.events.ofType(model.EventWaitlistSeated)
			require.NoError(t, turnover.RecordSeated(ctx, seated[len(seated)-1]))
		}

		first := f.join(t, "Chen", 2)
		f.clock.Advance(40 * time.Minute)
		_, err := svc.Notify(ctx, f.venueID, first.ID, "host-1")
		require.NoError(t, err)
		seat(first.ID)

		estimate, err := svc.EstimateWait(ctx, f.venueID, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, estimate.Samples)
		assert.Equal(t, 40.0, estimate.AvgTurnoverMin)

		// 之後 20 組未經通知直接入座，40 分那筆離開最近 20 次入座
		for i := 0; i < 20; i++ {
			entry := f.join(t, "Walk-in", 2)
			f.clock.Advance(time.Minute)
			seat(entry.ID)
		}

		last := f.join(t, "Lin", 2)
		estimate, err = svc.EstimateWait(ctx, f.venueID, &last.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, estimate.Position)
		assert.Equal(t, 0, estimate.Samples)
		assert.Equal(t, 15.0, estimate.AvgTurnoverMin)
		assert.Equal(t, 15, estimate.EstimatedMinutes)
		assert.Equal(t, "~15 min", estimate.Display)

		direct, err := NewNotifyLatencyStrategy(f.waitlist, 20).Average(ctx, f.venueID)
		require.NoError(t, err)
		assert.Equal(t, TurnoverStats{}, direct)
	})

	t.Run("Empty waitlist", func(t *testing.T) {
		f := setupWaitlist(t)

		estimate, err := f.svc.EstimateWait(ctx, f.venueID, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, estimate.Position)
		assert.Equal(t, "~15 min", estimate.Display)
	})

	t.Run("Entry that is no longer waiting", func(t *testing.T) {
		f := setupWaitlist(t)
		entry := f.join(t, "Chen", 2)
		_, err := f.svc.Notify(ctx, f.venueID, entry.ID, "host-1")
		require.NoError(t, err)

		_, err = f.svc.EstimateWait(ctx, f.venueID, &entry.ID)

		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("Turnover failure", func(t *testing.T) {
		f := setupWaitlist(t)
		turnoverCache := newFakeTurnoverCache(20)
		turnoverCache.readErr = errBoom
		svc := NewWaitlistService(f.waitlist,
			NewCachedTurnoverStrategy(turnoverCache, &failingSource{}),
			f.events, config.DefaultLedgerConfig(), WithClock(f.clock.Now))

		_, err := svc.EstimateWait(ctx, f.venueID, nil)

		assert.ErrorIs(t, err, errBoom)
	})
}

type failingSource struct{}

func (failingSource) Average(ctx context.Context, venueID uuid.UUID) (TurnoverStats, error) {
	return TurnoverStats{}, errBoom
}

func (failingSource) Window(ctx context.Context, venueID uuid.UUID) ([]cache.TurnoverSlot, error) {
	return nil, errBoom
}

func (failingSource) SlotFromEvent(event *model.LedgerEvent) (cache.TurnoverSlot, bool) {
	return cache.TurnoverSlot{}, false
}
