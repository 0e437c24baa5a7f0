package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/metrics"
	"daytrader/internal/pricing"
	"daytrader/internal/types"
)

var errSignalTimeout = errors.New("no signal within detection window")

// transitions lists the allowed moves. DONE and FAILED have no entry.
var transitions = map[types.State][]types.State{
	types.StateIdle:            {types.StateSignalWait, types.StateRestoredHolding, types.StateFailed},
	types.StateSignalWait:      {types.StateBuyPending, types.StateFailed},
	types.StateBuyPending:      {types.StateHolding, types.StateFailed},
	types.StateHolding:         {types.StateSellPending},
	types.StateRestoredHolding: {types.StateSellPending},
	types.StateSellPending:     {types.StateDone},
}

func canTransition(from, to types.State) bool {
	return !from.Terminal() && slices.Contains(transitions[from], to)
}

// machine owns one day's trade: detection, the single buy, holding and the
// single sell. All mutable state lives here.
type machine struct {
	set          settings
	signal       interfaces.SignalSource
	executor     *orderExecutor
	feed         interfaces.MarketFeed
	locks        interfaces.TradeLockStore
	journal      interfaces.ResultRecorder
	onTransition func(from, to types.State)

	guard SellGuard

	mu          sync.Mutex
	state       types.State
	position    *types.Position
	stopHolding context.CancelFunc
}

var _ interfaces.Engine = (*machine)(nil)

func newMachine(set settings, deps Deps) *machine {
	return &machine{
		set:          set,
		signal:       deps.Signal,
		executor:     newOrderExecutor(deps.Gateway),
		feed:         deps.Feed,
		locks:        deps.Locks,
		journal:      deps.Journal,
		onTransition: deps.OnTransition,
		state:        types.StateIdle,
	}
}

func (m *machine) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Position returns a copy of the open position, or nil before the buy.
func (m *machine) Position() *types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return nil
	}
	p := *m.position
	return &p
}

func (m *machine) setPosition(p *types.Position) {
	m.mu.Lock()
	m.position = p
	m.mu.Unlock()
}

func (m *machine) transition(ctx context.Context, to types.State, fields ...any) error {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	m.state = to
	hook := m.onTransition
	m.mu.Unlock()

	logger.Transition(ctx, from.String(), to.String(), fields...)
	if hook != nil {
		hook(from, to)
	}
	return nil
}

func (m *machine) fail(ctx context.Context, reason string) {
	if err := m.transition(ctx, types.StateFailed, "reason", reason); err != nil {
		logger.ErrorWithErr(ctx, "Could not enter FAILED", err, "reason", reason)
	}
}

// Run executes the day's trade. It returns (SIGNAL_WAIT, nil) when the
// detection window closes without a signal, and (DONE, nil) after a sell.
func (m *machine) Run(ctx context.Context) (types.State, error) {
	if s := m.State(); s != types.StateIdle {
		return s, fmt.Errorf("%w: run from %s", types.ErrInvalidTransition, s)
	}

	restored, err := m.restore(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Trade lock unreadable; refusing to trade today", err)
		m.fail(ctx, "lock_unreadable")
		return types.StateFailed, err
	}
	if restored != nil {
		m.setPosition(restored)
		if err := m.transition(ctx, types.StateRestoredHolding, "symbol", restored.Symbol); err != nil {
			return m.State(), err
		}
		logger.Info(ctx, "Restored today's position; skipping detection",
			"symbol", restored.Symbol,
			"name", restored.Name,
			"buy_price", pricing.FormatPrice(restored.BuyPrice),
			"quantity", restored.Quantity,
			"traded_at", restored.TradeTime,
		)
		return m.hold(ctx, *restored)
	}

	if err := m.transition(ctx, types.StateSignalWait); err != nil {
		return m.State(), err
	}
	op := logger.StartOperation(ctx, "engine.awaitSignal", "timeout", m.set.signalTimeout.String())
	ev, err := m.awaitSignal(op.GetContext())
	switch {
	case errors.Is(err, errSignalTimeout):
		op.End("outcome", "timeout")
		logger.Warn(ctx, "No signal within detection window; exiting", "timeout", m.set.signalTimeout.String())
		return types.StateSignalWait, nil
	case ctx.Err() != nil:
		op.End("outcome", "cancelled")
		return m.State(), err
	case err != nil:
		op.EndWithError(err)
		return m.State(), err
	}
	op.End("outcome", "detected", "symbol", ev.Symbol)

	pos, err := m.buy(ctx, ev)
	if err != nil {
		return m.State(), err
	}
	return m.hold(ctx, *pos)
}

// restore returns today's position from the lock store, or nil.
func (m *machine) restore(ctx context.Context) (*types.Position, error) {
	has, err := m.locks.HasTradeToday(ctx)
	if err != nil {
		return nil, asPersistenceFailure(err)
	}
	if !has {
		return nil, nil
	}
	pos, err := m.locks.LoadTodayTrade(ctx)
	if err != nil {
		return nil, asPersistenceFailure(err)
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: lock reports a trade today but returned none", types.ErrPersistenceFailure)
	}
	if pos.TargetProfitRate <= 0 {
		pos.TargetProfitRate = m.set.targetRate
	}
	return pos, nil
}

func usableDetection(ev types.DetectionEvent) bool {
	return ev.HasData && ev.Symbol != "" && pricing.ParsePrice(ev.CurrentPriceText) > 0
}

// awaitSignal polls the signal source until a usable detection arrives or
// the detection window closes.
func (m *machine) awaitSignal(ctx context.Context) (types.DetectionEvent, error) {
	wctx, cancel := context.WithTimeout(ctx, m.set.signalTimeout)
	defer cancel()
	ticker := time.NewTicker(m.set.signalPoll)
	defer ticker.Stop()

	started := m.set.now()
	lastWaitLog := started
	logger.Info(ctx, "Waiting for buy signal",
		"timeout", m.set.signalTimeout.String(),
		"poll_interval", m.set.signalPoll.String(),
	)

	for {
		ev, err := m.signal.ReadSnapshot(wctx)
		switch {
		case errors.Is(err, types.ErrSourceClosed):
			logger.ErrorWithErr(ctx, "Signal source closed during detection", err)
			return types.DetectionEvent{}, err
		case err != nil:
			if wctx.Err() == nil {
				logger.Warn(ctx, "Signal read failed; retrying", "error", err)
			}
		case usableDetection(ev):
			logger.Info(ctx, "Buy signal detected",
				"symbol", ev.Symbol,
				"name", ev.Name,
				"price", ev.CurrentPriceText,
			)
			return ev, nil
		case ev.HasData:
			logger.Warn(ctx, "Detection without symbol or price; skipping",
				"symbol", ev.Symbol,
				"name", ev.Name,
				"price", ev.CurrentPriceText,
			)
		default:
			if now := m.set.now(); now.Sub(lastWaitLog) >= m.set.waitLogEvery {
				lastWaitLog = now
				logger.Info(ctx, "Still waiting for signal", "elapsed", now.Sub(started).Round(time.Second).String())
			}
		}

		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return types.DetectionEvent{}, ctx.Err()
			}
			return types.DetectionEvent{}, errSignalTimeout
		case <-ticker.C:
		}
	}
}

// buy places the day's only buy and persists the position. Any failure is
// final for the day.
func (m *machine) buy(ctx context.Context, ev types.DetectionEvent) (*types.Position, error) {
	if err := m.transition(ctx, types.StateBuyPending, "symbol", ev.Symbol); err != nil {
		return nil, err
	}
	// Once committed to the buy, shutdown must not cut off the order reply or
	// the lock write; a lost lock means a second buy after restart.
	bctx := context.WithoutCancel(ctx)

	price := pricing.ParsePrice(ev.CurrentPriceText)
	qty := CalculateQuantity(price, m.set.investmentCap)
	if qty == 0 {
		err := fmt.Errorf("%w: %s at %s buys zero shares with cap %d",
			types.ErrOrderRejected, ev.Symbol, pricing.FormatPrice(price), m.set.investmentCap)
		logger.ErrorWithErr(ctx, "Buy skipped", err)
		m.fail(ctx, "zero_quantity")
		return nil, err
	}

	logger.Info(ctx, "Placing market buy",
		"symbol", ev.Symbol,
		"name", ev.Name,
		"price", pricing.FormatPrice(price),
		"quantity", qty,
		"amount", pricing.FormatPrice(price*qty),
	)
	outcome := m.executor.SubmitMarketBuy(bctx, ev.Symbol, qty, price)

	now := m.set.now()
	pos := &types.Position{
		TradeDate:        types.TradeDate(now),
		TradeTime:        now.In(types.KST).Format(types.DateTimeLayout),
		Symbol:           ev.Symbol,
		Name:             ev.Name,
		BuyPrice:         price,
		Quantity:         qty,
		TargetProfitRate: m.set.targetRate,
	}
	result := types.TradeResult{
		Action:       types.SideBuy,
		Source:       types.SourceSignal,
		Detection:    &ev,
		CurrentPrice: price,
		Outcome:      outcome,
	}
	if outcome.Success {
		result.Position = pos
	}
	m.recordResult(bctx, result)

	if !outcome.Success {
		err := fmt.Errorf("%w: buy %s: %s", types.ErrOrderRejected, ev.Symbol, outcome.Message)
		logger.ErrorWithErr(ctx, "Buy failed; no retry today", err)
		m.fail(ctx, "buy_failed")
		return nil, err
	}

	m.setPosition(pos)
	if err := m.locks.RecordTrade(bctx, *pos); err != nil {
		err = asPersistenceFailure(err)
		logger.ErrorWithErr(ctx, "Bought but trade lock was not persisted; manual intervention required", err,
			"symbol", pos.Symbol,
			"order_id", outcome.OrderID,
			"quantity", pos.Quantity,
		)
		m.fail(ctx, "persist_failed")
		return nil, err
	}

	if err := m.transition(ctx, types.StateHolding, "symbol", pos.Symbol, "order_id", outcome.OrderID); err != nil {
		return nil, err
	}
	return pos, nil
}

// hold watches pos through both observation paths until the sell succeeds
// or ctx ends. It returns after both paths have stopped.
func (m *machine) hold(ctx context.Context, pos types.Position) (types.State, error) {
	op := logger.StartOperation(ctx, "engine.hold", "symbol", pos.Symbol)
	ctx = op.GetContext()
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.stopHolding = cancel
	m.mu.Unlock()

	obs := newPriceObserver(hctx, pos, m.trySell, m.set.progressEvery, m.set.now)

	subscribed := false
	if m.feed != nil {
		if err := m.feed.Subscribe(hctx, pos.Symbol, obs.OnPush); err != nil {
			logger.Warn(ctx, "Push feed unavailable; relying on polling", "symbol", pos.Symbol, "error", err)
		} else {
			subscribed = true
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		obs.RunPoll(hctx, m.signal, m.set.holdPoll)
	}()

	target := pos.BuyPrice + int64(float64(pos.BuyPrice)*pos.TargetProfitRate)
	logger.Info(ctx, "Watching for profit target",
		"symbol", pos.Symbol,
		"buy_price", pricing.FormatPrice(pos.BuyPrice),
		"target_price", pricing.FormatPrice(target),
		"quantity", pos.Quantity,
		"push_feed", subscribed,
	)

	<-hctx.Done()

	if subscribed {
		if err := m.feed.Unsubscribe(context.WithoutCancel(ctx), pos.Symbol); err != nil {
			logger.Warn(ctx, "Feed unsubscribe failed", "symbol", pos.Symbol, "error", err)
		}
	}
	if m.feed != nil {
		if err := m.feed.Close(); err != nil {
			logger.Warn(ctx, "Feed close failed", "error", err)
		}
	}
	wg.Wait()

	s := m.State()
	op.End("state", s.String())
	if s == types.StateDone {
		return s, nil
	}
	return s, ctx.Err()
}

// trySell is the single sell entry point for both observation paths.
// Only the caller that wins the guard reaches the gateway.
func (m *machine) trySell(ctx context.Context, current int64, source types.Source) bool {
	if !m.guard.TryAcquire() {
		metrics.SellGuardRejections.Inc()
		logger.Debug(ctx, "Sell already claimed", "source", source, "current_price", current)
		return false
	}
	pos := m.Position()
	if pos == nil {
		logger.Error(ctx, "Sell triggered without a position", "source", source)
		return false
	}
	if err := m.transition(ctx, types.StateSellPending, "source", source, "current_price", current); err != nil {
		logger.ErrorWithErr(ctx, "Sell trigger rejected", err, "source", source)
		return false
	}

	// The order must go out even if holding is being torn down.
	sctx := context.WithoutCancel(ctx)
	price := pricing.SellPrice(current)
	rate := pos.ProfitRate(current)
	logger.Info(sctx, "Profit target reached; placing limit sell",
		"symbol", pos.Symbol,
		"current_price", pricing.FormatPrice(current),
		"sell_price", pricing.FormatPrice(price),
		"profit_rate", fmt.Sprintf("%.2f%%", rate*100),
		"source", source,
	)
	outcome := m.executor.SubmitLimitSell(sctx, pos.Symbol, pos.Quantity, price)
	m.recordResult(sctx, types.TradeResult{
		Action:       types.SideSell,
		Source:       source,
		Position:     pos,
		CurrentPrice: current,
		ProfitRate:   rate,
		Outcome:      outcome,
	})

	if !outcome.Success {
		logger.Error(sctx, "Sell failed; position left open, manual intervention required",
			"symbol", pos.Symbol,
			"quantity", pos.Quantity,
			"sell_price", price,
			"message", outcome.Message,
		)
		return false
	}

	if err := m.transition(sctx, types.StateDone, "order_id", outcome.OrderID); err != nil {
		logger.ErrorWithErr(sctx, "Could not enter DONE", err)
	}
	m.mu.Lock()
	stop := m.stopHolding
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	return true
}

func (m *machine) recordResult(ctx context.Context, r types.TradeResult) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordResult(ctx, r); err != nil {
		logger.Warn(ctx, "Failed to write trade result", "action", r.Action, "error", err)
	}
}

func asPersistenceFailure(err error) error {
	if errors.Is(err, types.ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrPersistenceFailure, err)
}
