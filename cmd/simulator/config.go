package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_backtest/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	SourceCSV        = "csv"
	SourceBybit      = "bybit"
	SourceBybitKline = "bybit_kline"
)

type Config struct {
	Instrument struct {
		ID     string `yaml:"id"`
		Symbol string `yaml:"symbol"`
	} `yaml:"instrument"`
	Account struct {
		InitialCash    string `yaml:"initial_cash"`
		CommissionRate string `yaml:"commission_rate"`
	} `yaml:"account"`
	Data struct {
		Source        string `yaml:"source"`
		CSVPath       string `yaml:"csv_path"`
		Spread        string `yaml:"spread"`
		Start         string `yaml:"start"`
		End           string `yaml:"end"`
		KlineInterval string `yaml:"kline_interval"`
		KlineLimit    int    `yaml:"kline_limit"`
	} `yaml:"data"`
	Strategy struct {
		Lookback    time.Duration `yaml:"lookback"`
		OrderSize   int64         `yaml:"order_size"`
		OrderKind   string        `yaml:"order_kind"`
		LimitOffset string        `yaml:"limit_offset"`
	} `yaml:"strategy"`
	Exchanges struct {
		Bybit struct {
			RESTEndpoint string `yaml:"rest_endpoint"`
			WSEndpoint   string `yaml:"ws_endpoint"`
		} `yaml:"bybit"`
	} `yaml:"exchanges"`
	Storage struct {
		DBPath      string `yaml:"db_path"`
		SummaryPath string `yaml:"summary_path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port      int  `yaml:"port"`
		KeepAlive bool `yaml:"keep_alive"`
	} `yaml:"server"`
}

// Settings are the parsed, validated values the process is wired from.
type Settings struct {
	InitialCash    decimal.Decimal
	CommissionRate decimal.Decimal
	Spread         decimal.Decimal
	LimitOffset    decimal.Decimal
	OrderKind      domain.OrderKind
	Start          time.Time
	End            time.Time
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Instrument.ID, "BTC")
	setDefault(&c.Instrument.Symbol, "BTCUSDT")
	setDefault(&c.Account.InitialCash, "100000")
	setDefault(&c.Account.CommissionRate, "0.01")
	setDefault(&c.Data.Source, SourceCSV)
	setDefault(&c.Data.Spread, "0.3")
	setDefault(&c.Data.KlineInterval, "60")
	setDefault(&c.Strategy.OrderKind, "market")
	setDefault(&c.Strategy.LimitOffset, "0")
	setDefault(&c.Exchanges.Bybit.RESTEndpoint, "https://api.bybit.com")
	setDefault(&c.Exchanges.Bybit.WSEndpoint, "wss://stream.bybit.com/v5/public/linear")
	setDefault(&c.Storage.DBPath, "backtest.db")
	setDefault(&c.Logging.Level, "info")
	if c.Data.KlineLimit == 0 {
		c.Data.KlineLimit = 200
	}
	if c.Strategy.Lookback == 0 {
		c.Strategy.Lookback = 6 * time.Hour
	}
	if c.Strategy.OrderSize == 0 {
		c.Strategy.OrderSize = 10
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	_, err := c.Resolve()
	return err
}

func (c *Config) Resolve() (Settings, error) {
	var s Settings
	var err error

	if s.InitialCash, err = positiveDecimal("account.initial_cash", c.Account.InitialCash); err != nil {
		return s, err
	}
	if s.CommissionRate, err = nonNegativeDecimal("account.commission_rate", c.Account.CommissionRate); err != nil {
		return s, err
	}
	if s.Spread, err = nonNegativeDecimal("data.spread", c.Data.Spread); err != nil {
		return s, err
	}
	if s.LimitOffset, err = nonNegativeDecimal("strategy.limit_offset", c.Strategy.LimitOffset); err != nil {
		return s, err
	}

	switch strings.ToLower(c.Strategy.OrderKind) {
	case "market":
		s.OrderKind = domain.OrderKindMarket
	case "limit":
		s.OrderKind = domain.OrderKindLimit
	default:
		return s, fmt.Errorf("strategy.order_kind: unknown kind %q", c.Strategy.OrderKind)
	}
	if c.Strategy.OrderSize <= 0 {
		return s, fmt.Errorf("strategy.order_size: must be positive, got %d", c.Strategy.OrderSize)
	}
	if c.Strategy.Lookback <= 0 {
		return s, fmt.Errorf("strategy.lookback: must be positive, got %s", c.Strategy.Lookback)
	}

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.CSVPath == "" {
			return s, fmt.Errorf("data.csv_path: required for source %q", SourceCSV)
		}
	case SourceBybit, SourceBybitKline:
	default:
		return s, fmt.Errorf("data.source: unknown source %q", c.Data.Source)
	}

	if s.Start, err = optionalTime("data.start", c.Data.Start); err != nil {
		return s, err
	}
	if s.End, err = optionalTime("data.end", c.Data.End); err != nil {
		return s, err
	}
	if !s.Start.IsZero() && !s.End.IsZero() && !s.Start.Before(s.End) {
		return s, fmt.Errorf("data.end: must be after data.start")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return s, fmt.Errorf("server.port: out of range %d", c.Server.Port)
	}
	return s, nil
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func positiveDecimal(field, v string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, v)
	if err == nil && !d.IsPositive() {
		err = fmt.Errorf("%s: must be positive, got %s", field, d)
	}
	return d, err
}

func nonNegativeDecimal(field, v string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, v)
	if err == nil && d.IsNegative() {
		err = fmt.Errorf("%s: must not be negative, got %s", field, d)
	}
	return d, err
}

func optionalTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unrecognized time %q", field, v)
}
