package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"daytrader/internal/types"
)

func TestSellGuardSingleWinner(t *testing.T) {
	var g SellGuard
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, wins.Load(), int32(1))
	assert.True(t, g.Fired())
	assert.False(t, g.TryAcquire())
}

// Both paths see the target at the same moment; exactly one sell goes out.
func TestConcurrentPollAndPushSellOnce(t *testing.T) {
	h := newHarness()
	h.gateway.sellDelay = 20 * time.Millisecond
	m := h.machine(testSettings())

	pos := types.Position{Symbol: "005930", BuyPrice: 75_000, Quantity: 98, TargetProfitRate: 0.02}
	m.state = types.StateHolding
	m.position = &pos
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.stopHolding = cancel

	obs := newPriceObserver(ctx, pos, m.trySell, time.Hour, time.Now)

	start := make(chan struct{})
	var sold atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			if obs.Evaluate(ctx, 76_600, types.SourcePoll) {
				sold.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			obs.OnPush("005930", 76_600, nil)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, h.gateway.sells.Load(), int32(1))
	assert.True(t, sold.Load() <= 1)
	assert.Equal(t, m.State(), types.StateDone)
	assert.True(t, ctx.Err() != nil)
}
