package zerodha

import (
	"context"
	"fmt"
	"sync"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

// tickerConn is the subset of *kiteticker.Ticker used by Feed.
type tickerConn interface {
	Serve()
	Stop()
	Subscribe(tokens []uint32) error
	Unsubscribe(tokens []uint32) error
	SetMode(mode kiteticker.Mode, tokens []uint32) error
}

// Feed streams last traded prices from the Kite ticker. Subscriptions made
// before the socket is up are sent from the connect callback.
type Feed struct {
	ticker tickerConn
	mapper *instrumentMapper

	mu        sync.Mutex
	handlers  map[string]interfaces.PriceHandler
	connected bool
	closed    bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.MarketFeed = (*Feed)(nil)

func NewFeed(apiKey, accessToken string, instruments map[string]uint32) *Feed {
	t := kiteticker.New(apiKey, accessToken)
	t.SetAutoReconnect(false)
	f := newFeed(t, instruments)
	f.setupEventHandlers(t)
	return f
}

func newFeed(t tickerConn, instruments map[string]uint32) *Feed {
	return &Feed{
		ticker:   t,
		mapper:   newInstrumentMapper(instruments),
		handlers: make(map[string]interfaces.PriceHandler),
	}
}

func (f *Feed) Subscribe(ctx context.Context, symbol string, handler interfaces.PriceHandler) error {
	token, ok := f.mapper.activate(symbol)
	if !ok {
		return fmt.Errorf("no instrument token configured for %s", symbol)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("%w: feed closed", types.ErrFeedDisconnected)
	}
	f.handlers[symbol] = handler
	connected := f.connected
	f.mu.Unlock()

	f.startOnce.Do(func() {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.ticker.Serve()
		}()
	})

	if connected {
		return f.stream([]uint32{token})
	}
	return nil
}

func (f *Feed) Unsubscribe(ctx context.Context, symbol string) error {
	token, ok := f.mapper.deactivate(symbol)

	f.mu.Lock()
	delete(f.handlers, symbol)
	connected := f.connected
	f.mu.Unlock()

	if !ok || !connected {
		return nil
	}
	return f.ticker.Unsubscribe([]uint32{token})
}

func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.connected = false
	f.mu.Unlock()

	f.ticker.Stop()
	f.wg.Wait()
	return nil
}

func (f *Feed) stream(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	if err := f.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("%w: subscribe: %v", types.ErrFeedDisconnected, err)
	}
	if err := f.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("%w: set mode: %v", types.ErrFeedDisconnected, err)
	}
	return nil
}
