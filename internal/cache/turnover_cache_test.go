package cache

import (
	"context"
	"log"
	"os"
	"testing"

	"venue-ledger/internal/testutil"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRdb *redis.Client

func TestMain(m *testing.M) {
	rdb, cleanup, err := testutil.SetupRedisOnly()
	if err != nil {
		log.Printf("setup redis: %v", err)
	} else {
		testRdb = rdb
	}
	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

func getTestRdb(t *testing.T) *redis.Client {
	t.Helper()
	testutil.SkipWithout(t, "redis", testRdb != nil)
	return testRdb
}

func samples(minutes ...float64) []TurnoverSlot {
	window := make([]TurnoverSlot, 0, len(minutes))
	for _, m := range minutes {
		window = append(window, Sample(uuid.New(), m))
	}
	return window
}

func TestTurnoverCache_Average(t *testing.T) {
	ctx := context.Background()
	turnover := NewRedisTurnoverCache(getTestRdb(t), 3)

	t.Run("Empty venue", func(t *testing.T) {
		_, _, err := turnover.Average(ctx, uuid.New())

		assert.ErrorIs(t, err, ErrNoSamples)
	})

	t.Run("Warm up then average", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, samples(10, 20, 30, 40)))

		avg, n, err := turnover.Average(ctx, venueID)

		require.NoError(t, err)
		assert.Equal(t, 3, n, "超過 sample size 的部分應被裁掉")
		assert.Equal(t, 20.0, avg)
	})

	t.Run("Slots without samples are skipped", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, []TurnoverSlot{Sample(uuid.New(), 12), NoSample(uuid.New()), Sample(uuid.New(), 18)}))

		avg, n, err := turnover.Average(ctx, venueID)

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 15.0, avg)
	})

	t.Run("Window with no samples is still a cache hit", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, []TurnoverSlot{NoSample(uuid.New()), NoSample(uuid.New())}))

		_, n, err := turnover.Average(ctx, venueID)

		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Warm up with no seatings clears the venue", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, samples(10)))
		require.NoError(t, turnover.WarmUp(ctx, venueID, nil))

		_, _, err := turnover.Average(ctx, venueID)

		assert.ErrorIs(t, err, ErrNoSamples)
	})
}

func TestTurnoverCache_PushSeating(t *testing.T) {
	ctx := context.Background()
	turnover := NewRedisTurnoverCache(getTestRdb(t), 3)

	t.Run("Keeps the latest N seatings", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, samples(5)))

		for _, minutes := range []float64{10, 15, 20} {
			pushed, err := turnover.PushSeating(ctx, venueID, Sample(uuid.New(), minutes))
			require.NoError(t, err)
			assert.True(t, pushed)
		}

		// 只保留最近 3 格：20, 15, 10
		avg, n, err := turnover.Average(ctx, venueID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 15.0, avg)
	})

	t.Run("Seatings without samples push old samples out", func(t *testing.T) {
		venueID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, samples(40)))

		for i := 0; i < 3; i++ {
			_, err := turnover.PushSeating(ctx, venueID, NoSample(uuid.New()))
			require.NoError(t, err)
		}

		_, n, err := turnover.Average(ctx, venueID)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "40 分那筆已不在最近 3 次入座內")
	})

	t.Run("Cold venue is left for the next warm up", func(t *testing.T) {
		venueID := uuid.New()

		pushed, err := turnover.PushSeating(ctx, venueID, Sample(uuid.New(), 10))

		require.NoError(t, err)
		assert.False(t, pushed)
		_, _, err = turnover.Average(ctx, venueID)
		assert.ErrorIs(t, err, ErrNoSamples)
	})

	t.Run("Same seating is pushed once", func(t *testing.T) {
		venueID := uuid.New()
		entryID := uuid.New()
		require.NoError(t, turnover.WarmUp(ctx, venueID, []TurnoverSlot{Sample(entryID, 12)}))

		pushed, err := turnover.PushSeating(ctx, venueID, Sample(entryID, 12))

		require.NoError(t, err)
		assert.False(t, pushed)
		_, n, err := turnover.Average(ctx, venueID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Negative sample", func(t *testing.T) {
		_, err := turnover.PushSeating(ctx, uuid.New(), Sample(uuid.New(), -1))

		assert.Error(t, err)
	})
}
