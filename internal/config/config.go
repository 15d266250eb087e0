package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"StockWatch/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Watchlist   string `yaml:"watchlist" validate:"required"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsAddr string `yaml:"metrics_addr"`
	Proxy       string `yaml:"proxy" validate:"omitempty,url"`

	DataSource struct {
		Provider       string        `yaml:"provider" validate:"oneof=yahoo polygon vstrader mock"`
		PolygonAPIKey  string        `yaml:"polygon_api_key" validate:"required_if=Provider polygon"`
		VsTraderURL    string        `yaml:"vstrader_url" validate:"required_if=Provider vstrader"`
		VsTraderAPIKey string        `yaml:"vstrader_api_key"`
		HistoryDays    int           `yaml:"history_days" validate:"gte=1"`
		Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
		FetchDeadline  time.Duration `yaml:"fetch_deadline" validate:"gtefield=Timeout"` // all attempts of one symbol
		MaxRetries     int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	} `yaml:"data_source"`

	Store struct {
		Backend       string `yaml:"backend" validate:"oneof=sqlite json redis"`
		SQLitePath    string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
		JSONDir       string `yaml:"json_dir" validate:"required_if=Backend json"`
		RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	} `yaml:"store"`

	History struct {
		SQLitePath string `yaml:"sqlite_path"` // empty disables the signal history
	} `yaml:"history"`

	Indicators struct {
		Windows []int `yaml:"windows" validate:"min=1,dive,gt=0"`
	} `yaml:"indicators"`

	Trend struct {
		Mode        string `yaml:"mode" validate:"oneof=snapshot convergence"`
		ShortWindow int    `yaml:"short_window" validate:"gt=0"`
		LongWindow  int    `yaml:"long_window" validate:"gt=0,nefield=ShortWindow"`
		Points      int    `yaml:"points" validate:"gte=2"`
	} `yaml:"trend"`

	StopLoss struct {
		LossPct  float64 `yaml:"loss_pct" validate:"gt=0,lt=1"`
		TrailPct float64 `yaml:"trail_pct" validate:"gt=0,lt=1"`
	} `yaml:"stop_loss"`

	Engine struct {
		Workers  int    `yaml:"workers" validate:"gte=1,lte=64"`
		Timezone string `yaml:"timezone"`
	} `yaml:"engine"`

	Schedule struct {
		DailyCron string `yaml:"daily_cron" validate:"required"`
	} `yaml:"schedule"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
	} `yaml:"telegram"`
}

// LoadEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Missing files are ignored and variables already
// set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// unset marker, so an explicit max_retries: 0 disables retries
	cfg.DataSource.MaxRetries = -1

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"STOCKWATCH_WATCHLIST": &c.Watchlist,
		"POLYGON_API_KEY":      &c.DataSource.PolygonAPIKey,
		"VSTRADER_BASE_URL":    &c.DataSource.VsTraderURL,
		"VSTRADER_API_KEY":     &c.DataSource.VsTraderAPIKey,
		"DATA_PROVIDER":        &c.DataSource.Provider,
		"STORE_BACKEND":        &c.Store.Backend,
		"SQLITE_PATH":          &c.Store.SQLitePath,
		"HISTORY_SQLITE_PATH":  &c.History.SQLitePath,
		"REDIS_ADDR":           &c.Store.RedisAddr,
		"REDIS_PASSWORD":       &c.Store.RedisPassword,
		"TELEGRAM_BOT_TOKEN":   &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":     &c.Telegram.ChatID,
		"HTTPS_PROXY":          &c.Proxy,
		"CRON_DAILY":           &c.Schedule.DailyCron,
		"LOG_LEVEL":            &c.LogLevel,
		"METRICS_ADDR":         &c.MetricsAddr,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

func (c *Config) applyDefaults() {
	if c.Watchlist == "" {
		c.Watchlist = "configs/watchlist.csv"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.HistoryDays == 0 {
		c.DataSource.HistoryDays = 400
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 30 * time.Second
	}
	if c.DataSource.MaxRetries < 0 {
		c.DataSource.MaxRetries = 3
	}
	if c.DataSource.FetchDeadline == 0 {
		c.DataSource.FetchDeadline = max(2*time.Minute, c.DataSource.Timeout)
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/stockwatch.db"
	}
	if c.Store.JSONDir == "" {
		c.Store.JSONDir = "data/cache"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if len(c.Indicators.Windows) == 0 {
		c.Indicators.Windows = []int{20, 50, 200}
	}
	if c.Trend.Mode == "" {
		c.Trend.Mode = "snapshot"
	}
	if c.Trend.ShortWindow == 0 {
		c.Trend.ShortWindow = 20
	}
	if c.Trend.LongWindow == 0 {
		c.Trend.LongWindow = 50
	}
	if c.Trend.Points == 0 {
		c.Trend.Points = 4
	}
	if c.StopLoss.LossPct == 0 {
		c.StopLoss.LossPct = 0.07
	}
	if c.StopLoss.TrailPct == 0 {
		c.StopLoss.TrailPct = 0.03
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "Local"
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 17 * * 1-5"
	}
}

// Validate checks field constraints and the timezone. Failures are
// KindInvalidConfig.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.KindInvalidConfig, "invalid config", err)
	}
	if _, err := c.Location(); err != nil {
		return errors.Wrap(errors.KindInvalidConfig, "invalid config", err)
	}
	return nil
}

// Location resolves engine.timezone; calendar-day refresh decisions use it.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone %q: %w", c.Engine.Timezone, err)
	}
	return loc, nil
}

// LossPct returns stop_loss.loss_pct as a decimal.
func (c *Config) LossPct() decimal.Decimal { return decimal.NewFromFloat(c.StopLoss.LossPct) }

// TrailPct returns stop_loss.trail_pct as a decimal.
func (c *Config) TrailPct() decimal.Decimal { return decimal.NewFromFloat(c.StopLoss.TrailPct) }

// NotifyEnabled reports whether Telegram credentials are configured.
func (c *Config) NotifyEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
