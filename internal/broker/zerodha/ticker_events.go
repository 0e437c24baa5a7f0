package zerodha

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"daytrader/internal/logger"
	"daytrader/internal/types"
)

func (f *Feed) setupEventHandlers(t *kiteticker.Ticker) {
	t.OnConnect(f.onConnect)
	t.OnError(f.onError)
	t.OnClose(f.onClose)
	t.OnReconnect(f.onReconnect)
	t.OnNoReconnect(f.onNoReconnect)
	t.OnTick(f.onTick)
}

func (f *Feed) onConnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	tokens := f.mapper.activeTokens()
	logger.Info(context.Background(), "Ticker connected", "instruments", len(tokens))
	if err := f.stream(tokens); err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to subscribe instruments", err)
	}
}

func (f *Feed) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Ticker error occurred", err)
}

func (f *Feed) onClose(code int, reason string) {
	f.mu.Lock()
	closing := f.closed
	f.connected = false
	f.mu.Unlock()
	if closing {
		return
	}
	logger.ErrorWithErr(context.Background(), "Ticker connection closed; push path stopped",
		fmt.Errorf("%w: code %d: %s", types.ErrFeedDisconnected, code, reason))
}

func (f *Feed) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "Ticker reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (f *Feed) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "Ticker reconnection failed - giving up",
		"attempts", attempt,
	)
}

func (f *Feed) onTick(tick models.Tick) {
	symbol := f.mapper.symbol(tick.InstrumentToken)
	if symbol == "" {
		return
	}

	f.mu.Lock()
	h := f.handlers[symbol]
	f.mu.Unlock()
	if h == nil {
		return
	}

	price := int64(math.Round(tick.LastPrice))
	if price <= 0 {
		return
	}
	h(symbol, price, map[string]string{
		"last_price":    strconv.FormatFloat(tick.LastPrice, 'f', 2, 64),
		"volume_traded": strconv.FormatUint(uint64(tick.VolumeTraded), 10),
	})
}
