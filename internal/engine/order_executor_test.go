package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"

	"daytrader/internal/types"
)

func TestCalculateQuantity(t *testing.T) {
	cases := []struct {
		price, cap, want int64
	}{
		{75_000, 7_500_000, 98},
		{75_000, 1_000_000, 13},
		{10_000, 1_000_000, 98},
		{200_000, 7_500_000, 36},
		{0, 1_000_000, 0},
		{-5, 1_000_000, 0},
		{1_000_000, 1_000_000, 0},
		{980_000, 1_000_000, 1},
		{1_000, 0, 0},
	}
	for _, tc := range cases {
		if got := CalculateQuantity(tc.price, tc.cap); got != tc.want {
			t.Errorf("CalculateQuantity(%d, %d) = %d, want %d", tc.price, tc.cap, got, tc.want)
		}
	}
}

func TestSubmitMarketBuySuccess(t *testing.T) {
	gw := newFakeGateway()
	out := newOrderExecutor(gw).SubmitMarketBuy(context.Background(), "005930", 98, 75_000)

	assert.True(t, out.Success)
	assert.Equal(t, out.OrderID, "B-1")
	assert.Equal(t, out.Side, types.SideBuy)
	assert.Equal(t, out.Quantity, int64(98))
	assert.Equal(t, out.Price, int64(75_000))
	assert.Equal(t, gw.buys.Load(), int32(1))
}

func TestMissingOrderIDIsFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.sellReply = types.OrderReply{Status: "200", Message: "accepted"}
	out := newOrderExecutor(gw).SubmitLimitSell(context.Background(), "005930", 98, 76_500)

	assert.False(t, out.Success)
	assert.Equal(t, out.OrderID, "")
	assert.Equal(t, out.Message, "no order id in reply: accepted")
	assert.Equal(t, out.Price, int64(76_500))
}

func TestGatewayErrorIsFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.buyErr = errors.New("connection reset")
	out := newOrderExecutor(gw).SubmitMarketBuy(context.Background(), "005930", 1, 75_000)

	assert.False(t, out.Success)
	assert.Equal(t, out.Message, "connection reset")
	assert.Equal(t, out.Price, int64(75_000))
	assert.Equal(t, gw.buys.Load(), int32(1))
}

func TestInvalidQuantityNeverReachesGateway(t *testing.T) {
	gw := newFakeGateway()
	ex := newOrderExecutor(gw)

	assert.False(t, ex.SubmitMarketBuy(context.Background(), "005930", 0, 75_000).Success)
	assert.False(t, ex.SubmitLimitSell(context.Background(), "005930", 0, 100).Success)
	assert.Equal(t, gw.buys.Load(), int32(0))
	assert.Equal(t, gw.sells.Load(), int32(0))
}
