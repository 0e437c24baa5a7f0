package interfaces

import (
	"context"

	"daytrader/internal/types"
)

// OrderGateway places orders with a broker. A reply without an order id is
// a failed order even when err is nil.
type OrderGateway interface {
	BuyMarket(ctx context.Context, symbol string, qty int64) (types.OrderReply, error)
	SellLimit(ctx context.Context, symbol string, qty int64, price int64) (types.OrderReply, error)
}
