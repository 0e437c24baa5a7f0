package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"

	BrokerKiwoom  = "KIWOOM"
	BrokerZerodha = "ZERODHA"

	LockFile  = "FILE"
	LockRedis = "REDIS"
)

type Config struct {
	Mode      string `yaml:"mode"`
	Broker    string `yaml:"broker"`
	AccountNo string `yaml:"account_no"`

	Trade struct {
		InvestmentCap    int64   `yaml:"investment_cap"`
		TargetProfitRate float64 `yaml:"target_profit_rate"`
	} `yaml:"trade"`

	Signal struct {
		URL              string `yaml:"url"`
		PollIntervalMs   int    `yaml:"poll_interval_ms"`
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
		RequestTimeoutMs int    `yaml:"request_timeout_ms"`
		WaitLogSeconds   int    `yaml:"wait_log_seconds"`
		UserAgent        string `yaml:"user_agent"`
	} `yaml:"signal"`

	Holding struct {
		PollIntervalMs     int  `yaml:"poll_interval_ms"`
		ProgressLogSeconds int  `yaml:"progress_log_seconds"`
		PollOnly           bool `yaml:"poll_only"`
	} `yaml:"holding"`

	Lock struct {
		Backend   string `yaml:"backend"`
		Path      string `yaml:"path"`
		RedisAddr string `yaml:"redis_addr"`
		RedisKey  string `yaml:"redis_key"`
	} `yaml:"lock"`

	Results struct {
		Dir           string `yaml:"dir"`
		LogDir        string `yaml:"log_dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"results"`

	Kiwoom struct {
		UseMock          bool   `yaml:"use_mock"`
		BaseURL          string `yaml:"base_url"`
		MockBaseURL      string `yaml:"mock_base_url"`
		WSURL            string `yaml:"ws_url"`
		MockWSURL        string `yaml:"mock_ws_url"`
		Exchange         string `yaml:"exchange"`
		RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	} `yaml:"kiwoom"`

	Zerodha struct {
		Exchange    string            `yaml:"exchange"`
		Product     string            `yaml:"product"`
		Instruments map[string]uint32 `yaml:"instruments"`
	} `yaml:"zerodha"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// KiwoomBaseURL picks the REST host for the configured environment.
func (c *Config) KiwoomBaseURL() string {
	if c.Kiwoom.UseMock {
		return c.Kiwoom.MockBaseURL
	}
	return c.Kiwoom.BaseURL
}

func (c *Config) KiwoomWSURL() string {
	if c.Kiwoom.UseMock {
		return c.Kiwoom.MockWSURL
	}
	return c.Kiwoom.WSURL
}

func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode))
	}
	if c.Broker != BrokerKiwoom && c.Broker != BrokerZerodha {
		errs = append(errs, fmt.Errorf("invalid broker '%s': must be 'KIWOOM' or 'ZERODHA'", c.Broker))
	}
	if c.Trade.InvestmentCap <= 0 {
		errs = append(errs, fmt.Errorf("trade.investment_cap must be positive, got %d", c.Trade.InvestmentCap))
	}
	if c.Trade.TargetProfitRate <= 0 || c.Trade.TargetProfitRate >= 1 {
		errs = append(errs, fmt.Errorf("trade.target_profit_rate must be in (0, 1), got %.4f", c.Trade.TargetProfitRate))
	}
	if c.Signal.URL == "" {
		errs = append(errs, errors.New("signal.url cannot be empty"))
	}
	if c.Signal.PollIntervalMs <= 0 || c.Holding.PollIntervalMs <= 0 {
		errs = append(errs, errors.New("poll intervals must be positive"))
	}
	if c.Signal.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("signal.timeout_seconds must be positive, got %d", c.Signal.TimeoutSeconds))
	}
	switch c.Lock.Backend {
	case LockFile:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr is required for the REDIS backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend must be 'FILE' or 'REDIS', got '%s'", c.Lock.Backend))
	}
	if c.Broker == BrokerZerodha && !c.Holding.PollOnly && len(c.Zerodha.Instruments) == 0 {
		errs = append(errs, errors.New("zerodha.instruments is required for the push feed"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.Broker == "" {
		c.Broker = BrokerKiwoom
	}
	if c.Trade.InvestmentCap == 0 {
		c.Trade.InvestmentCap = 1_000_000
	}
	if c.Trade.TargetProfitRate == 0 {
		c.Trade.TargetProfitRate = 0.02
	}
	if c.Signal.URL == "" {
		c.Signal.URL = "https://live.today-stock.kr/"
	}
	if c.Signal.PollIntervalMs == 0 {
		c.Signal.PollIntervalMs = 500
	}
	if c.Signal.TimeoutSeconds == 0 {
		c.Signal.TimeoutSeconds = 600
	}
	if c.Signal.RequestTimeoutMs == 0 {
		c.Signal.RequestTimeoutMs = 5_000
	}
	if c.Signal.WaitLogSeconds == 0 {
		c.Signal.WaitLogSeconds = 10
	}
	if c.Holding.PollIntervalMs == 0 {
		c.Holding.PollIntervalMs = 500
	}
	if c.Holding.ProgressLogSeconds == 0 {
		c.Holding.ProgressLogSeconds = 10
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = LockFile
	}
	if c.Lock.Path == "" {
		c.Lock.Path = "daily_trading_lock.json"
	}
	if c.Results.Dir == "" {
		c.Results.Dir = "trading_results"
	}
	if c.Results.LogDir == "" {
		c.Results.LogDir = "logs"
	}
	if c.Kiwoom.BaseURL == "" {
		c.Kiwoom.BaseURL = "https://api.kiwoom.com"
	}
	if c.Kiwoom.MockBaseURL == "" {
		c.Kiwoom.MockBaseURL = "https://mockapi.kiwoom.com"
	}
	if c.Kiwoom.WSURL == "" {
		c.Kiwoom.WSURL = "wss://api.kiwoom.com:10000/api/dostk/websocket"
	}
	if c.Kiwoom.MockWSURL == "" {
		c.Kiwoom.MockWSURL = "wss://mockapi.kiwoom.com:10000/api/dostk/websocket"
	}
	if c.Kiwoom.Exchange == "" {
		c.Kiwoom.Exchange = "KRX"
	}
	if c.Kiwoom.RequestTimeoutMs == 0 {
		c.Kiwoom.RequestTimeoutMs = 10_000
	}
	if c.Zerodha.Exchange == "" {
		c.Zerodha.Exchange = "NSE"
	}
	if c.Zerodha.Product == "" {
		c.Zerodha.Product = "CNC"
	}
}

// applyEnv lets the environment override the file for the values operators
// change per run.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ACCOUNT_NO"); v != "" {
		c.AccountNo = v
	}
	if v := os.Getenv("MAX_INVESTMENT"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_INVESTMENT: %w", err)
		}
		c.Trade.InvestmentCap = n
	}
	if v := os.Getenv("USE_MOCK"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("USE_MOCK: %w", err)
		}
		c.Kiwoom.UseMock = b
	}
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TRADER_LOG_RETENTION_DAYS: %w", err)
		}
		c.Results.RetentionDays = n
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		c.Results.LogDir = v
	}
	return nil
}

// LoadConfig reads path, applies defaults and environment overrides, and
// validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("config env override failed: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
