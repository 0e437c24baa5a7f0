package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"daytrader/internal/broker/brokerobs"
	"daytrader/internal/broker/kiwoom"
	"daytrader/internal/broker/zerodha"
	"daytrader/internal/engine"
	"daytrader/internal/engine/engineobs"
	"daytrader/internal/eod"
	"daytrader/internal/eod/eodobs"
	"daytrader/internal/interfaces"
	"daytrader/internal/logger"
	"daytrader/internal/metrics"
	"daytrader/internal/signals"
	"daytrader/internal/store"
	"daytrader/internal/trace"
	"daytrader/internal/tradelock"
	"daytrader/internal/tradelog"
	"daytrader/internal/types"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

func compressOldLogs(ctx context.Context, cfg *store.Config) {
	n, err := tradelog.CompressOlder(cfg.Results.LogDir, cfg.Results.RetentionDays, time.Now())
	if err != nil {
		logger.Warn(ctx, "Failed to compress old journals", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old journals", "files", n, "retention_days", cfg.Results.RetentionDays)
	}
}

// brokerStack is the order gateway plus the optional push feed of one broker.
type brokerStack struct {
	gateway interfaces.OrderGateway
	feed    interfaces.MarketFeed
}

func initializeBroker(ctx context.Context, cfg *store.Config) brokerStack {
	if cfg.Mode == store.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	var bs brokerStack
	switch cfg.Broker {
	case store.BrokerZerodha:
		apiKey, accessToken := os.Getenv("KITE_API_KEY"), os.Getenv("KITE_ACCESS_TOKEN")
		bs.gateway = zerodha.NewGateway(zerodha.Params{
			Mode:        cfg.Mode,
			APIKey:      apiKey,
			AccessToken: accessToken,
			Exchange:    cfg.Zerodha.Exchange,
			Product:     cfg.Zerodha.Product,
		})
		if !cfg.Holding.PollOnly {
			bs.feed = zerodha.NewFeed(apiKey, accessToken, cfg.Zerodha.Instruments)
		}
	default:
		appKey, secretKey := kiwoomCredentials(cfg)
		client := kiwoom.NewClient(kiwoom.Params{
			Mode:           cfg.Mode,
			BaseURL:        cfg.KiwoomBaseURL(),
			AppKey:         appKey,
			SecretKey:      secretKey,
			Exchange:       cfg.Kiwoom.Exchange,
			RequestTimeout: time.Duration(cfg.Kiwoom.RequestTimeoutMs) * time.Millisecond,
		})
		bs.gateway = kiwoom.NewGateway(client)
		if !cfg.Holding.PollOnly {
			bs.feed = kiwoom.NewFeed(cfg.KiwoomWSURL(), client)
		}
		logger.Info(ctx, "Using Kiwoom REST API",
			"base_url", cfg.KiwoomBaseURL(),
			"mock", cfg.Kiwoom.UseMock,
		)
	}

	bs.gateway = brokerobs.Wrap(cfg.Broker, bs.gateway)
	return bs
}

func kiwoomCredentials(cfg *store.Config) (appKey, secretKey string) {
	if cfg.Kiwoom.UseMock {
		return os.Getenv("KIWOOM_MOCK_APP_KEY"), os.Getenv("KIWOOM_MOCK_SECRET_KEY")
	}
	return os.Getenv("KIWOOM_APP_KEY"), os.Getenv("KIWOOM_SECRET_KEY")
}

// initializeLocks returns the trade lock store and a func releasing it.
func initializeLocks(ctx context.Context, cfg *store.Config) (interfaces.TradeLockStore, func(), error) {
	if cfg.Lock.Backend != store.LockRedis {
		s := tradelock.NewFileStore(cfg.Lock.Path, nil)
		logger.Info(ctx, "Using file trade lock", "path", s.Path())
		return s, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%w: redis %s: %w", types.ErrPersistenceFailure, cfg.Lock.RedisAddr, err)
	}
	logger.Info(ctx, "Using Redis trade lock", "addr", cfg.Lock.RedisAddr, "key", cfg.Lock.RedisKey)
	return tradelock.NewRedisStore(client, cfg.Lock.RedisKey, nil), func() { client.Close() }, nil
}

func initializeSignal(cfg *store.Config) *signals.PageSource {
	return signals.NewPageSource(cfg.Signal.URL, signals.Options{
		RequestTimeout: time.Duration(cfg.Signal.RequestTimeoutMs) * time.Millisecond,
		UserAgent:      cfg.Signal.UserAgent,
	})
}

func initializeEngine(cfg *store.Config, deps engine.Deps) interfaces.Engine {
	deps.OnTransition = func(from, to types.State) {
		metrics.SetState(to)
	}
	return engineobs.Wrap(engine.New(cfg, deps))
}

func initializeEOD(cfg *store.Config) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(cfg.Results.LogDir, nil))
}

// runEODSchedule writes the EOD CSV once the market has closed, checking
// every minute while the session is still running.
func runEODSchedule(ctx context.Context, summarizer interfaces.EodSummarizer) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			ok, _ := summarizer.ShouldRunNow()
			if !ok {
				continue
			}
			if p, err := summarizer.SummarizeToday(); err != nil {
				logger.Warn(ctx, "EOD summary failed", "error", err)
			} else if p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
		}
	}
}

// startMetricsServer serves /metrics when metrics.addr is set. The returned
// func shuts the server down.
func startMetricsServer(ctx context.Context, cfg *store.Config) func() {
	if cfg.Metrics.Addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", cfg.Metrics.Addr)
		}
	}()
	logger.Info(ctx, "Serving metrics", "addr", cfg.Metrics.Addr)

	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}
