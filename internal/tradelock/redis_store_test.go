package tradelock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/redis/go-redis/v9"

	"daytrader/internal/types"
)

// Runs against a real server only when REDIS_ADDR is set.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	key := "daytrader:test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	now := time.Date(2024, 3, 5, 9, 0, 0, 0, types.KST)
	s := NewRedisStore(client, key, fixedClock(now))
	ctx := context.Background()

	has, err := s.HasTradeToday(ctx)
	assert.NoError(t, err)
	assert.False(t, has)

	assert.NoError(t, s.RecordTrade(ctx, samplePosition()))
	got, err := s.LoadTodayTrade(ctx)
	assert.NoError(t, err)
	assert.Equal(t, got.Symbol, "005930")
	assert.Equal(t, got.TradeDate, "20240305")

	tomorrow := NewRedisStore(client, key, fixedClock(now.AddDate(0, 0, 1)))
	has, err = tomorrow.HasTradeToday(ctx)
	assert.NoError(t, err)
	assert.False(t, has)
}
