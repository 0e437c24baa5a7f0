package engine

import (
	"context"
	"fmt"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/metrics"
	"daytrader/internal/types"
)

// Share of the investment cap actually spent; the rest covers fees and slippage.
const (
	capUsableNumerator   = 98
	capUsableDenominator = 100
)

// CalculateQuantity returns floor(investmentCap * 0.98 / price), or 0 when
// price is not positive or the cap cannot buy a single share.
func CalculateQuantity(price, investmentCap int64) int64 {
	if price <= 0 || investmentCap <= 0 {
		return 0
	}
	qty := investmentCap * capUsableNumerator / (capUsableDenominator * price)
	if qty < 1 {
		return 0
	}
	return qty
}

// orderExecutor turns gateway replies into outcomes. It makes exactly one
// gateway call per submission and never retries.
type orderExecutor struct {
	gateway interfaces.OrderGateway
}

func newOrderExecutor(gateway interfaces.OrderGateway) *orderExecutor {
	return &orderExecutor{gateway: gateway}
}

// SubmitMarketBuy places a market buy for qty shares. refPrice is the
// detected price the quantity was sized from; it is recorded on the outcome
// but not sent, since the order executes at market.
func (oe *orderExecutor) SubmitMarketBuy(ctx context.Context, symbol string, qty, refPrice int64) types.OrderOutcome {
	out := types.OrderOutcome{Symbol: symbol, Side: types.SideBuy, Quantity: qty, Price: refPrice}
	if qty <= 0 {
		out.Message = fmt.Sprintf("invalid quantity %d", qty)
		metrics.OrderResult(out.Side, false)
		return out
	}
	reply, err := oe.gateway.BuyMarket(ctx, symbol, qty)
	return oe.finish(ctx, out, reply, err)
}

// SubmitLimitSell places a limit sell for qty shares at price.
func (oe *orderExecutor) SubmitLimitSell(ctx context.Context, symbol string, qty, price int64) types.OrderOutcome {
	out := types.OrderOutcome{Symbol: symbol, Side: types.SideSell, Quantity: qty, Price: price}
	if qty <= 0 || price <= 0 {
		out.Message = fmt.Sprintf("invalid sell qty=%d price=%d", qty, price)
		metrics.OrderResult(out.Side, false)
		return out
	}
	reply, err := oe.gateway.SellLimit(ctx, symbol, qty, price)
	return oe.finish(ctx, out, reply, err)
}

// finish applies the success rule: no error and a non-empty order id.
func (oe *orderExecutor) finish(ctx context.Context, out types.OrderOutcome, reply types.OrderReply, err error) types.OrderOutcome {
	out.Exchange = reply.Exchange
	switch {
	case err != nil:
		out.Message = err.Error()
	case reply.OrderID == "":
		out.Message = "no order id in reply"
		if reply.Message != "" {
			out.Message += ": " + reply.Message
		}
	default:
		out.Success = true
		out.OrderID = reply.OrderID
		out.Message = reply.Message
	}

	metrics.OrderResult(out.Side, out.Success)
	if out.Success {
		logger.Trade(ctx, out.Symbol, string(out.Side), out.Quantity, out.Price, out.OrderID, "exchange", out.Exchange)
	} else {
		logger.Error(ctx, "Order failed",
			"symbol", out.Symbol,
			"side", out.Side,
			"qty", out.Quantity,
			"price", out.Price,
			"message", out.Message,
		)
	}
	return out
}
