package tradelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

const DefaultRedisKey = "daytrader:trade_lock"

// RedisStore keeps the same JSON record under a single key. Durability
// follows the server's persistence settings.
type RedisStore struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

var _ interfaces.TradeLockStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, key string, now func() time.Time) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, key: key, now: now}
}

func (s *RedisStore) HasTradeToday(ctx context.Context) (bool, error) {
	p, err := s.LoadTodayTrade(ctx)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *RedisStore) LoadTodayTrade(ctx context.Context) (*types.Position, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %w", types.ErrPersistenceFailure, s.key, err)
	}
	return decodeRecord(b, s.now())
}

func (s *RedisStore) RecordTrade(ctx context.Context, p types.Position) error {
	b, err := encodeRecord(p, s.now())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %w", types.ErrPersistenceFailure, s.key, err)
	}
	return nil
}
