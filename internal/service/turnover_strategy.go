package service

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"venue-ledger/config"
	"venue-ledger/internal/cache"
	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	"venue-ledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const attrNotifyLatencyMinutes = "notify_latency_minutes"

// TurnoverStats 平均翻桌分鐘數；Samples 為 0 時由呼叫端套用預設值
type TurnoverStats struct {
	AvgMinutes float64
	Samples    int
}

type TurnoverStrategy interface {
	Average(ctx context.Context, venueID uuid.UUID) (TurnoverStats, error)
}

// SampleSource 可由 DB 重建視窗的策略；CachedTurnoverStrategy 用它預熱
type SampleSource interface {
	TurnoverStrategy
	// Window 最近 N 次入座，新到舊，每次入座一格
	Window(ctx context.Context, venueID uuid.UUID) ([]cache.TurnoverSlot, error)
	// SlotFromEvent 可直接由入座事件算出這一格時回傳 true
	SlotFromEvent(event *model.LedgerEvent) (cache.TurnoverSlot, bool)
}

func averageOf(window []cache.TurnoverSlot) TurnoverStats {
	var sum float64
	var n int
	for _, slot := range window {
		if slot.HasSample {
			sum += slot.Minutes
			n++
		}
	}
	if n == 0 {
		return TurnoverStats{}
	}
	return TurnoverStats{AvgMinutes: sum / float64(n), Samples: n}
}

// NotifyLatencyStrategy 最近 N 筆入座中，有被通知過的 (notified_at − created_at) 平均
// 這是等候到通知的延遲，只是翻桌時間的近似值
type NotifyLatencyStrategy struct {
	waitlist   repository.WaitlistRepository
	sampleSize int
}

func NewNotifyLatencyStrategy(waitlist repository.WaitlistRepository, sampleSize int) *NotifyLatencyStrategy {
	if sampleSize <= 0 {
		sampleSize = config.DefaultLedgerConfig().TurnoverSampleSize
	}
	return &NotifyLatencyStrategy{waitlist: waitlist, sampleSize: sampleSize}
}

// Window 未經通知的入座只佔一格
func (s *NotifyLatencyStrategy) Window(ctx context.Context, venueID uuid.UUID) ([]cache.TurnoverSlot, error) {
	seated, err := s.waitlist.RecentSeated(ctx, venueID, s.sampleSize)
	if err != nil {
		return nil, err
	}
	window := make([]cache.TurnoverSlot, 0, len(seated))
	for _, entry := range seated {
		if latency, ok := entry.NotifyLatency(); ok {
			window = append(window, cache.Sample(entry.ID, latency.Minutes()))
		} else {
			window = append(window, cache.NoSample(entry.ID))
		}
	}
	return window, nil
}

func (s *NotifyLatencyStrategy) Average(ctx context.Context, venueID uuid.UUID) (TurnoverStats, error) {
	window, err := s.Window(ctx, venueID)
	if err != nil {
		return TurnoverStats{}, err
	}
	return averageOf(window), nil
}

func (s *NotifyLatencyStrategy) SlotFromEvent(event *model.LedgerEvent) (cache.TurnoverSlot, bool) {
	if event.Attributes["notified_at"] == "" {
		return cache.NoSample(event.EntityID), true
	}
	raw, ok := event.Attributes[attrNotifyLatencyMinutes]
	if !ok {
		return cache.TurnoverSlot{}, false
	}
	minutes, err := strconv.ParseFloat(raw, 64)
	if err != nil || minutes < 0 {
		return cache.TurnoverSlot{}, false
	}
	return cache.Sample(event.EntityID, minutes), true
}

// SeatIntervalStrategy 相鄰兩次入座的間隔平均，較接近真實的翻桌速度
type SeatIntervalStrategy struct {
	waitlist   repository.WaitlistRepository
	sampleSize int
}

func NewSeatIntervalStrategy(waitlist repository.WaitlistRepository, sampleSize int) *SeatIntervalStrategy {
	if sampleSize <= 0 {
		sampleSize = config.DefaultLedgerConfig().TurnoverSampleSize
	}
	return &SeatIntervalStrategy{waitlist: waitlist, sampleSize: sampleSize}
}

// Window N+1 次入座產生 N 個間隔
func (s *SeatIntervalStrategy) Window(ctx context.Context, venueID uuid.UUID) ([]cache.TurnoverSlot, error) {
	seated, err := s.waitlist.RecentSeated(ctx, venueID, s.sampleSize+1)
	if err != nil {
		return nil, err
	}

	entries := make([]*model.WaitlistEntry, 0, len(seated))
	for _, entry := range seated {
		if entry.SeatedAt != nil {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SeatedAt.After(*entries[j].SeatedAt) })

	// 每個間隔記在較晚入座的那筆上
	window := make([]cache.TurnoverSlot, 0, len(entries))
	for i := 0; i+1 < len(entries); i++ {
		interval := entries[i].SeatedAt.Sub(*entries[i+1].SeatedAt)
		window = append(window, cache.Sample(entries[i].ID, interval.Minutes()))
	}
	return window, nil
}

func (s *SeatIntervalStrategy) Average(ctx context.Context, venueID uuid.UUID) (TurnoverStats, error) {
	window, err := s.Window(ctx, venueID)
	if err != nil {
		return TurnoverStats{}, err
	}
	return averageOf(window), nil
}

// SlotFromEvent 間隔需要前一筆入座時間，交給 DB 重建
func (s *SeatIntervalStrategy) SlotFromEvent(event *model.LedgerEvent) (cache.TurnoverSlot, bool) {
	return cache.TurnoverSlot{}, false
}

// CachedTurnoverStrategy Redis 優先；cache miss 時由 source 重建並預熱
type CachedTurnoverStrategy struct {
	cache  cache.TurnoverCache
	source SampleSource
}

func NewCachedTurnoverStrategy(turnoverCache cache.TurnoverCache, source SampleSource) *CachedTurnoverStrategy {
	return &CachedTurnoverStrategy{cache: turnoverCache, source: source}
}

func (s *CachedTurnoverStrategy) Average(ctx context.Context, venueID uuid.UUID) (TurnoverStats, error) {
	avg, n, err := s.cache.Average(ctx, venueID)
	if err == nil {
		return TurnoverStats{AvgMinutes: avg, Samples: n}, nil
	}
	if !errors.Is(err, cache.ErrNoSamples) {
		logger.WithComponent("waitlist").Warn("turnover cache read failed, falling back to database",
			zap.String("venue_id", venueID.String()), zap.Error(err))
	}

	window, err := s.source.Window(ctx, venueID)
	if err != nil {
		return TurnoverStats{}, err
	}
	if len(window) > 0 {
		if err := s.cache.WarmUp(ctx, venueID, window); err != nil {
			logger.WithComponent("waitlist").Warn("turnover cache warm-up failed",
				zap.String("venue_id", venueID.String()), zap.Error(err))
		}
	}
	return averageOf(window), nil
}

// RecordSeated 由 worker 在 waitlist.seated 事件時呼叫；每次入座都佔視窗一格
func (s *CachedTurnoverStrategy) RecordSeated(ctx context.Context, event *model.LedgerEvent) error {
	if slot, ok := s.source.SlotFromEvent(event); ok {
		// 未預熱時不推，下一次讀取會從 DB 重建 (已包含這次入座)
		_, err := s.cache.PushSeating(ctx, event.VenueID, slot)
		return err
	}

	window, err := s.source.Window(ctx, event.VenueID)
	if err != nil {
		return err
	}
	return s.cache.WarmUp(ctx, event.VenueID, window)
}

// NewTurnoverSource 依設定選擇樣本來源
func NewTurnoverSource(name string, waitlist repository.WaitlistRepository, sampleSize int) SampleSource {
	if name == config.TurnoverSeatInterval {
		return NewSeatIntervalStrategy(waitlist, sampleSize)
	}
	return NewNotifyLatencyStrategy(waitlist, sampleSize)
}
