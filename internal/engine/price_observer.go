package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/metrics"
	"daytrader/internal/pricing"
	"daytrader/internal/types"
)

type sellTrigger func(ctx context.Context, current int64, source types.Source) bool

// priceObserver feeds prices from the poll loop and the push feed into a
// single evaluation. Evaluate is safe for concurrent use.
type priceObserver struct {
	ctx           context.Context
	position      types.Position
	sell          sellTrigger
	progressEvery time.Duration
	now           func() time.Time

	mu         sync.Mutex
	lastLogged time.Time // zero until the first line, so the first observation logs
}

func newPriceObserver(ctx context.Context, pos types.Position, sell sellTrigger, progressEvery time.Duration, now func() time.Time) *priceObserver {
	return &priceObserver{
		ctx:           ctx,
		position:      pos,
		sell:          sell,
		progressEvery: progressEvery,
		now:           now,
	}
}

// Evaluate computes the profit rate for current and fires the sell trigger
// when the target is reached. It returns whether this call sold.
func (o *priceObserver) Evaluate(ctx context.Context, current int64, source types.Source) bool {
	metrics.ObservationsTotal.WithLabelValues(string(source)).Inc()
	if current <= 0 {
		return false
	}

	rate := o.position.ProfitRate(current)
	metrics.ProfitRate.Set(rate)
	o.logProgress(ctx, current, rate, source)

	if rate < o.position.TargetProfitRate {
		return false
	}
	return o.sell(ctx, current, source)
}

// logProgress emits at most one holding line per progressEvery, across both paths.
func (o *priceObserver) logProgress(ctx context.Context, current int64, rate float64, source types.Source) bool {
	o.mu.Lock()
	now := o.now()
	if now.Sub(o.lastLogged) < o.progressEvery {
		o.mu.Unlock()
		return false
	}
	o.lastLogged = now
	o.mu.Unlock()

	logger.Info(ctx, "Holding position",
		"symbol", o.position.Symbol,
		"name", o.position.Name,
		"buy_price", pricing.FormatPrice(o.position.BuyPrice),
		"current_price", pricing.FormatPrice(current),
		"profit_rate", fmt.Sprintf("%.2f%%", rate*100),
		"target_rate", fmt.Sprintf("%.2f%%", o.position.TargetProfitRate*100),
		"source", source,
	)
	return true
}

// OnPush is the market feed handler.
func (o *priceObserver) OnPush(symbol string, price int64, raw map[string]string) {
	if o.ctx.Err() != nil || symbol != o.position.Symbol {
		return
	}
	o.Evaluate(o.ctx, price, types.SourcePush)
}

// RunPoll reads the signal source every interval until ctx ends or the
// source closes. Snapshots for other symbols are ignored.
func (o *priceObserver) RunPoll(ctx context.Context, src interfaces.SignalSource, interval time.Duration) {
	if src == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ev, err := src.ReadSnapshot(ctx)
		switch {
		case errors.Is(err, types.ErrSourceClosed):
			logger.Warn(ctx, "Signal source closed; poll path stopped", "symbol", o.position.Symbol)
			return
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.Debug(ctx, "Poll read failed", "error", err)
			continue
		}

		if !ev.HasData || ev.Symbol != o.position.Symbol {
			continue
		}
		o.Evaluate(ctx, pricing.ParsePrice(ev.CurrentPriceText), types.SourcePoll)
	}
}
