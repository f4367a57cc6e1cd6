package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSamples 場館尚未預熱 (清單不存在)
var ErrNoSamples = errors.New("no turnover window cached")

// noSample 佔位：入座但沒有可用樣本 (例如未經通知)
const noSample = "-"

// TurnoverSlot 最近 N 次入座中的一格；HasSample 為 false 時只佔位置不計入平均
// EntryID 為該次入座的候位 id，同一筆只會佔一格
type TurnoverSlot struct {
	EntryID   uuid.UUID
	Minutes   float64
	HasSample bool
}

// Sample 有樣本的一格
func Sample(entryID uuid.UUID, minutes float64) TurnoverSlot {
	return TurnoverSlot{EntryID: entryID, Minutes: minutes, HasSample: true}
}

// NoSample 沒有樣本的一格
func NoSample(entryID uuid.UUID) TurnoverSlot {
	return TurnoverSlot{EntryID: entryID}
}

type TurnoverCache interface {
	// 預熱：用 DB 算出的視窗 (新到舊) 覆蓋 Redis 中的清單
	WarmUp(ctx context.Context, venueID uuid.UUID, window []TurnoverSlot) error
	// 推入：每次入座推一格並裁切到最近 N 格；尚未預熱或已在視窗內時不動作 (使用Lua腳本確保原子性)
	PushSeating(ctx context.Context, venueID uuid.UUID, slot TurnoverSlot) (bool, error)
	// 平均：只計算有樣本的格子；回傳平均分鐘數與樣本數
	Average(ctx context.Context, venueID uuid.UUID) (float64, int, error)
}

type RedisTurnoverCacheImpl struct {
	client     *redis.Client
	sampleSize int
}

func NewRedisTurnoverCache(client *redis.Client, sampleSize int) TurnoverCache {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	return &RedisTurnoverCacheImpl{
		client:     client,
		sampleSize: sampleSize,
	}
}

func (c *RedisTurnoverCacheImpl) samplesKey(venueID uuid.UUID) string {
	return fmt.Sprintf("waitlist:%s:turnover", venueID)
}

/*
推入並裁切：
 1. 清單不存在 (未預熱) 回傳 0，交給下一次讀取從 DB 重建
 2. 同一筆入座已在視窗內 (預熱時已從 DB 帶入) 回傳 0
 3. LPUSH 新的一格
 4. LTRIM 只保留最近 N 格
*/
var pushSeatingScript = redis.NewScript(`
	local key = KEYS[1]
	local slot = ARGV[1]
	local keep = tonumber(ARGV[2])
	local prefix = ARGV[3]

	if redis.call('EXISTS', key) == 0 then
		return 0
	end

	local current = redis.call('LRANGE', key, 0, -1)
	for i = 1, #current do
		if string.sub(current[i], 1, #prefix) == prefix then
			return 0
		end
	end

	redis.call('LPUSH', key, slot)
	redis.call('LTRIM', key, 0, keep - 1)

	return 1
`)

// 整批覆蓋，空清單時只刪除 key
var warmUpScript = redis.NewScript(`
	local key = KEYS[1]
	redis.call('DEL', key)
	for i = 1, #ARGV do
		redis.call('RPUSH', key, ARGV[i])
	end
	return #ARGV
`)

// 清單元素格式：<entry id>|<minutes 或 ->
func slotPrefix(entryID uuid.UUID) string {
	return entryID.String() + "|"
}

func encodeSlot(slot TurnoverSlot) (string, error) {
	if !slot.HasSample {
		return slotPrefix(slot.EntryID) + noSample, nil
	}
	if slot.Minutes < 0 {
		return "", fmt.Errorf("negative turnover sample: %v", slot.Minutes)
	}
	return slotPrefix(slot.EntryID) + strconv.FormatFloat(slot.Minutes, 'f', -1, 64), nil
}

func (c *RedisTurnoverCacheImpl) WarmUp(ctx context.Context, venueID uuid.UUID, window []TurnoverSlot) error {
	if len(window) > c.sampleSize {
		window = window[:c.sampleSize]
	}
	args := make([]interface{}, 0, len(window))
	for _, slot := range window {
		v, err := encodeSlot(slot)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	return warmUpScript.Run(ctx, c.client, []string{c.samplesKey(venueID)}, args...).Err()
}

func (c *RedisTurnoverCacheImpl) PushSeating(ctx context.Context, venueID uuid.UUID, slot TurnoverSlot) (bool, error) {
	v, err := encodeSlot(slot)
	if err != nil {
		return false, err
	}
	pushed, err := pushSeatingScript.Run(ctx, c.client,
		[]string{c.samplesKey(venueID)},
		v, c.sampleSize, slotPrefix(slot.EntryID),
	).Int()
	if err != nil {
		return false, err
	}
	return pushed == 1, nil
}

func (c *RedisTurnoverCacheImpl) Average(ctx context.Context, venueID uuid.UUID) (float64, int, error) {
	values, err := c.client.LRange(ctx, c.samplesKey(venueID), 0, int64(c.sampleSize-1)).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(values) == 0 {
		return 0, 0, ErrNoSamples
	}

	var sum float64
	var n int
	for _, v := range values {
		_, raw, _ := strings.Cut(v, "|")
		if raw == noSample {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid turnover sample %q: %w", v, err)
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}
