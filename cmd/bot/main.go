package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daytrader/internal/engine"
	"daytrader/internal/logger"
	"daytrader/internal/pricing"
	"daytrader/internal/trace"
	"daytrader/internal/tradelog"
	"daytrader/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(sctx)
	}()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return 1
	}
	compressOldLogs(ctx, cfg)

	locks, closeLocks, err := initializeLocks(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open trade lock", err)
		return 1
	}
	defer closeLocks()

	brk := initializeBroker(ctx, cfg)
	source := initializeSignal(cfg)
	defer source.Close()

	stopMetrics := startMetricsServer(ctx, cfg)
	defer stopMetrics()

	eng := initializeEngine(cfg, engine.Deps{
		Signal:  source,
		Gateway: brk.gateway,
		Feed:    brk.feed,
		Locks:   locks,
		Journal: tradelog.NewJournal(cfg.Results.Dir, cfg.Results.LogDir, nil),
	})

	logger.Info(ctx, "Day trader started",
		"mode", cfg.Mode,
		"broker", cfg.Broker,
		"account", cfg.AccountNo,
		"investment_cap", pricing.FormatPrice(cfg.Trade.InvestmentCap),
		"target_profit_rate", cfg.Trade.TargetProfitRate,
		"signal_url", cfg.Signal.URL,
		"tracing", trace.Enabled(),
	)

	summarizer := initializeEOD(cfg)
	eodCtx, stopEOD := context.WithCancel(ctx)
	eodDone := make(chan struct{})
	go func() {
		defer close(eodDone)
		runEODSchedule(eodCtx, summarizer)
	}()

	state, runErr := eng.Run(ctx)
	stopEOD()
	<-eodDone

	if p, err := summarizer.SummarizeToday(); err == nil && p != "" {
		logger.Info(ctx, "EOD CSV written", "path", p)
	}
	if state.Holding() || state == types.StateSellPending {
		logger.Warn(ctx, "Exiting with an open position; it is restored on the next start",
			"state", state.String(),
		)
	}

	switch {
	case runErr == nil:
		logger.Info(ctx, "Shutting down", "state", state.String())
		return 0
	case errors.Is(runErr, context.Canceled):
		logger.Info(ctx, "Interrupted; shutting down", "state", state.String())
		return 0
	default:
		logger.ErrorWithErr(ctx, "Trading day failed", runErr, "state", state.String())
		return 1
	}
}
