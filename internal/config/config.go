package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultChromeBin is the browser used in production mode when no explicit
// path is configured.
const DefaultChromeBin = "/usr/bin/google-chrome-stable"

// Config holds the full application configuration.
type Config struct {
	Env      string         `yaml:"env" mapstructure:"env"`
	Mongo    MongoConfig    `yaml:"mongo" mapstructure:"mongo"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Filter   FilterConfig   `yaml:"filter" mapstructure:"filter"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Campaign CampaignConfig `yaml:"campaign" mapstructure:"campaign"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// MongoConfig configures the document store.
type MongoConfig struct {
	URL                string `yaml:"url" mapstructure:"url"`
	Database           string `yaml:"database" mapstructure:"database"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	MaxPoolSize        uint64 `yaml:"max_pool_size" mapstructure:"max_pool_size"`
}

// BrowserConfig configures the shared headless browser.
type BrowserConfig struct {
	Bin         string   `yaml:"bin" mapstructure:"bin"`
	DebuggerURL string   `yaml:"debugger_url" mapstructure:"debugger_url"`
	Headless    bool     `yaml:"headless" mapstructure:"headless"`
	Stealth     bool     `yaml:"stealth" mapstructure:"stealth"`
	Flags       []string `yaml:"flags" mapstructure:"flags"`
}

// FilterConfig lists the subresources blocked on every extraction page.
type FilterConfig struct {
	BlockedTypes   []string `yaml:"blocked_types" mapstructure:"blocked_types"`
	BlockedDomains []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
}

// ExtractConfig configures the per-page extraction pipeline.
type ExtractConfig struct {
	URLTemplate         string `yaml:"url_template" mapstructure:"url_template"`
	Selector            string `yaml:"selector" mapstructure:"selector"`
	ReadyAttr           string `yaml:"ready_attr" mapstructure:"ready_attr"`
	ValueAttr           string `yaml:"value_attr" mapstructure:"value_attr"`
	ReadyTimeoutSecs    int    `yaml:"ready_timeout_secs" mapstructure:"ready_timeout_secs"`
	NavigateTimeoutSecs int    `yaml:"navigate_timeout_secs" mapstructure:"navigate_timeout_secs"`
}

// ReadyTimeout returns the readiness poll budget.
func (c ExtractConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSecs) * time.Second
}

// NavigateTimeout returns the navigation budget.
func (c ExtractConfig) NavigateTimeout() time.Duration {
	return time.Duration(c.NavigateTimeoutSecs) * time.Second
}

// CampaignConfig configures campaign orchestration.
type CampaignConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	Grouping      string  `yaml:"grouping" mapstructure:"grouping"`
	FailurePolicy string  `yaml:"failure_policy" mapstructure:"failure_policy"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	ExclusionFile string  `yaml:"exclusion_file" mapstructure:"exclusion_file"`
	Grades        []int   `yaml:"grades" mapstructure:"grades"`
	DLQMaxRetries int     `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
}

// QueryConfig configures the candidate query builder.
type QueryConfig struct {
	Limit int64 `yaml:"limit" mapstructure:"limit"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RetryConfig configures retries on document store reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitorConfig configures the run health checker of the HTTP service.
type MonitorConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	RunFailureThreshold  float64 `yaml:"run_failure_threshold" mapstructure:"run_failure_threshold"`
	PairFailureThreshold float64 `yaml:"pair_failure_threshold" mapstructure:"pair_failure_threshold"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Production reports whether the process runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// ChromeBin returns the browser executable for the current mode. Only
// production pins a path; elsewhere the result is empty and the launcher
// resolves a browser itself, even when browser.bin is set.
func (c *Config) ChromeBin() string {
	if !c.Production() {
		return ""
	}
	if c.Browser.Bin != "" {
		return c.Browser.Bin
	}
	return DefaultChromeBin
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// .env is a development convenience; production reads the real environment.
	if !strings.EqualFold(os.Getenv("NODE_ENV"), "production") &&
		!strings.EqualFold(os.Getenv("PRICEUPDATE_ENV"), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrap(err, "config: load .env")
		}
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICEUPDATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names of the original deployment.
	for key, env := range map[string]string{
		"mongo.url":   "MONGODB_URL",
		"env":         "NODE_ENV",
		"browser.bin": "CHROME_EXECUTABLE_PATH",
	} {
		if err := v.BindEnv(key, "PRICEUPDATE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("mongo.database", "fconline")
	v.SetDefault("mongo.connect_timeout_secs", 10)
	v.SetDefault("mongo.max_pool_size", 20)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", false)
	v.SetDefault("browser.flags", []string{
		"no-sandbox",
		"disable-setuid-sandbox",
		"disable-dev-shm-usage",
		"disable-extensions",
		"disable-gpu",
		"no-zygote",
	})
	v.SetDefault("filter.blocked_types", []string{
		"image", "font", "stylesheet", "media", "texttrack",
		"fetch", "xhr", "eventsource", "websocket", "manifest", "other",
	})
	v.SetDefault("filter.blocked_domains", []string{"google-analytics.com", "doubleclick.net"})
	v.SetDefault("extract.url_template", "https://fconline.nexon.com/DataCenter/PlayerInfo?spid={id}&n1Strong={grade}")
	v.SetDefault("extract.selector", ".txt strong")
	v.SetDefault("extract.ready_attr", "title")
	v.SetDefault("extract.ready_timeout_secs", 80)
	v.SetDefault("extract.navigate_timeout_secs", 30)
	v.SetDefault("campaign.concurrency", 10)
	v.SetDefault("campaign.grouping", "grade")
	v.SetDefault("campaign.failure_policy", "drop")
	v.SetDefault("campaign.rate_per_sec", 0)
	v.SetDefault("campaign.grades", []int{1, 2, 3, 4, 5, 6, 7, 8})
	v.SetDefault("campaign.dlq_max_retries", 3)
	v.SetDefault("query.limit", 10000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "priceupdate.db")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.run_failure_threshold", 0.10)
	v.SetDefault("monitor.pair_failure_threshold", 0.25)
	v.SetDefault("monitor.dlq_depth_threshold", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
// Modes: "campaign", "search", "retry", "runs", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	needsMongo := mode == "campaign" || mode == "search" || mode == "retry" || mode == "serve"
	if needsMongo && c.Mongo.URL == "" {
		errs = append(errs, "mongo.url is required (MONGODB_URL)")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "campaign" || mode == "retry" || mode == "serve" {
		if c.Campaign.Concurrency < 1 {
			errs = append(errs, "campaign.concurrency must be at least 1")
		}
		switch c.Campaign.Grouping {
		case "grade", "entity", "season":
		default:
			errs = append(errs, "campaign.grouping must be grade, entity or season")
		}
		switch c.Campaign.FailurePolicy {
		case "drop", "record":
		default:
			errs = append(errs, "campaign.failure_policy must be drop or record")
		}
		for _, g := range c.Campaign.Grades {
			if g < 1 || g > 8 {
				errs = append(errs, "campaign.grades must lie in 1-8")
				break
			}
		}
		if c.Extract.ReadyTimeoutSecs <= 0 {
			errs = append(errs, "extract.ready_timeout_secs must be positive")
		}
		if !strings.Contains(c.Extract.URLTemplate, "{id}") {
			errs = append(errs, "extract.url_template must contain {id}")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return resilience.Configuration("config", eris.Errorf("invalid configuration: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
