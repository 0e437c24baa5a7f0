package brokerobs

import (
	"context"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/trace"
	"daytrader/internal/types"
)

// observableGateway wraps an OrderGateway with logging and tracing
type observableGateway struct {
	name    string
	gateway interfaces.OrderGateway
}

var _ interfaces.OrderGateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(name string, gateway interfaces.OrderGateway) interfaces.OrderGateway {
	return &observableGateway{
		name:    name,
		gateway: gateway,
	}
}

// BuyMarket places a market buy with observability
func (og *observableGateway) BuyMarket(ctx context.Context, symbol string, qty int64) (types.OrderReply, error) {
	ctx, span := trace.StartSpan(ctx, "broker.BuyMarket")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Placing order",
		"broker", og.name,
		"symbol", symbol,
		"side", types.SideBuy,
		"qty", qty,
		"type", "MARKET",
	)

	reply, err := og.gateway.BuyMarket(ctx, symbol, qty)
	og.finish(ctx, symbol, types.SideBuy, reply, err, start)
	return reply, err
}

// SellLimit places a limit sell with observability
func (og *observableGateway) SellLimit(ctx context.Context, symbol string, qty, price int64) (types.OrderReply, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SellLimit")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Placing order",
		"broker", og.name,
		"symbol", symbol,
		"side", types.SideSell,
		"qty", qty,
		"price", price,
		"type", "LIMIT",
	)

	reply, err := og.gateway.SellLimit(ctx, symbol, qty, price)
	og.finish(ctx, symbol, types.SideSell, reply, err, start)
	return reply, err
}

func (og *observableGateway) finish(ctx context.Context, symbol string, side types.Side, reply types.OrderReply, err error, start time.Time) {
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "Failed to place order", err,
			"broker", og.name,
			"symbol", symbol,
			"side", side,
			"duration_ms", elapsed,
		)
		return
	}
	if reply.OrderID == "" {
		logger.WarnSkip(ctx, 2, "Order reply carried no order id",
			"broker", og.name,
			"symbol", symbol,
			"side", side,
			"message", reply.Message,
			"duration_ms", elapsed,
		)
		return
	}
	logger.InfoSkip(ctx, 2, "Order placed successfully",
		"broker", og.name,
		"symbol", symbol,
		"side", side,
		"order_id", reply.OrderID,
		"exchange", reply.Exchange,
		"duration_ms", elapsed,
	)
}
