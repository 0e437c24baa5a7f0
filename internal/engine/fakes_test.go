package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

func testSettings() settings {
	return settings{
		investmentCap: 7_500_000,
		targetRate:    0.02,
		signalPoll:    5 * time.Millisecond,
		signalTimeout: 2 * time.Second,
		waitLogEvery:  10 * time.Second,
		holdPoll:      5 * time.Millisecond,
		progressEvery: 10 * time.Second,
		now:           time.Now,
	}
}

// scriptedSignal returns the scripted snapshots in order, then repeats the last one.
type scriptedSignal struct {
	mu    sync.Mutex
	steps []signalStep
	reads int
}

type signalStep struct {
	ev  types.DetectionEvent
	err error
}

func (s *scriptedSignal) ReadSnapshot(ctx context.Context) (types.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.steps) == 0 {
		return types.DetectionEvent{}, nil
	}
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return step.ev, step.err
}

func detection(symbol, name, price string) types.DetectionEvent {
	return types.DetectionEvent{HasData: true, Symbol: symbol, Name: name, CurrentPriceText: price}
}

type fakeGateway struct {
	buys  atomic.Int32
	sells atomic.Int32

	mu        sync.Mutex
	buyReply  types.OrderReply
	buyErr    error
	sellReply types.OrderReply
	sellErr   error
	sellDelay time.Duration
	afterBuy  func()
	soldAt    []int64
	soldQty   []int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		buyReply:  types.OrderReply{OrderID: "B-1", Exchange: "KRX"},
		sellReply: types.OrderReply{OrderID: "S-1", Exchange: "KRX"},
	}
}

func (g *fakeGateway) BuyMarket(ctx context.Context, symbol string, qty int64) (types.OrderReply, error) {
	g.buys.Add(1)
	if g.afterBuy != nil {
		g.afterBuy()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buyReply, g.buyErr
}

func (g *fakeGateway) SellLimit(ctx context.Context, symbol string, qty, price int64) (types.OrderReply, error) {
	g.sells.Add(1)
	if g.sellDelay > 0 {
		time.Sleep(g.sellDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.soldAt = append(g.soldAt, price)
	g.soldQty = append(g.soldQty, qty)
	return g.sellReply, g.sellErr
}

type fakeFeed struct {
	mu           sync.Mutex
	handler      interfaces.PriceHandler
	subscribed   chan string
	unsubscribed []string
	closed       bool
	subscribeErr error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subscribed: make(chan string, 1)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, symbol string, handler interfaces.PriceHandler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	f.subscribed <- symbol
	return nil
}

func (f *fakeFeed) Unsubscribe(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbol)
	return nil
}

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Drop simulates a server-side disconnect: no further prices arrive.
func (f *fakeFeed) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
}

func (f *fakeFeed) Push(symbol string, price int64) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(symbol, price, map[string]string{"10": fmt.Sprintf("+%d", price)})
	}
}

// memLocks keeps the lock in memory. With honorCtx set it fails on a done
// context the way a network-backed store does.
type memLocks struct {
	mu       sync.Mutex
	today    *types.Position
	recorded []types.Position
	readErr  error
	writeErr error
	honorCtx bool
}

func (l *memLocks) HasTradeToday(ctx context.Context) (bool, error) {
	if l.honorCtx && ctx.Err() != nil {
		return false, ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return false, l.readErr
	}
	return l.today != nil, nil
}

func (l *memLocks) LoadTodayTrade(ctx context.Context) (*types.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	if l.today == nil {
		return nil, nil
	}
	p := *l.today
	return &p, nil
}

func (l *memLocks) RecordTrade(ctx context.Context, p types.Position) error {
	if l.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.recorded = append(l.recorded, p)
	l.today = &p
	return nil
}

type memJournal struct {
	mu      sync.Mutex
	results []types.TradeResult
}

func (j *memJournal) RecordResult(ctx context.Context, r types.TradeResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

type transitionLog struct {
	mu    sync.Mutex
	moves []string
}

func (t *transitionLog) hook(from, to types.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.moves = append(t.moves, from.String()+"->"+to.String())
}

func (t *transitionLog) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.moves...)
}

type runResult struct {
	state types.State
	err   error
}

func runAsync(ctx context.Context, m *machine) <-chan runResult {
	out := make(chan runResult, 1)
	go func() {
		s, err := m.Run(ctx)
		out <- runResult{s, err}
	}()
	return out
}

var errWaitTimeout = errors.New("timed out waiting")

func waitResult(ch <-chan runResult, d time.Duration) (runResult, error) {
	select {
	case r := <-ch:
		return r, nil
	case <-time.After(d):
		return runResult{}, errWaitTimeout
	}
}
