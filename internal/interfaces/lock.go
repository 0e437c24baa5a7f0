package interfaces

import (
	"context"

	"daytrader/internal/types"
)

type TradeLockStore interface {
	HasTradeToday(ctx context.Context) (bool, error)
	// RecordTrade must be durable when it returns nil.
	RecordTrade(ctx context.Context, p types.Position) error
	// LoadTodayTrade returns nil, nil when there is no record for today.
	LoadTodayTrade(ctx context.Context) (*types.Position, error)
}
