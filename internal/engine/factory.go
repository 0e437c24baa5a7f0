package engine

import (
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/store"
	"daytrader/internal/types"
)

// Deps are the collaborators of the trade machine. Feed and Journal are optional.
type Deps struct {
	Signal       interfaces.SignalSource
	Gateway      interfaces.OrderGateway
	Feed         interfaces.MarketFeed
	Locks        interfaces.TradeLockStore
	Journal      interfaces.ResultRecorder
	OnTransition func(from, to types.State)
}

type settings struct {
	investmentCap int64
	targetRate    float64
	signalPoll    time.Duration
	signalTimeout time.Duration
	waitLogEvery  time.Duration
	holdPoll      time.Duration
	progressEvery time.Duration
	now           func() time.Time
}

func settingsFromConfig(cfg *store.Config) settings {
	return settings{
		investmentCap: cfg.Trade.InvestmentCap,
		targetRate:    cfg.Trade.TargetProfitRate,
		signalPoll:    time.Duration(cfg.Signal.PollIntervalMs) * time.Millisecond,
		signalTimeout: time.Duration(cfg.Signal.TimeoutSeconds) * time.Second,
		waitLogEvery:  time.Duration(cfg.Signal.WaitLogSeconds) * time.Second,
		holdPoll:      time.Duration(cfg.Holding.PollIntervalMs) * time.Millisecond,
		progressEvery: time.Duration(cfg.Holding.ProgressLogSeconds) * time.Second,
		now:           time.Now,
	}
}

func New(cfg *store.Config, deps Deps) interfaces.Engine {
	return newMachine(settingsFromConfig(cfg), deps)
}
