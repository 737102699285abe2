package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Request timeout bounds for marketplace calls
const (
	MinRequestTimeout = 10 * time.Second
	MaxRequestTimeout = 30 * time.Second
)

// EnvPrefix prefixes every environment override, e.g. ORDERSYNC_DATABASE_PASSWORD
const EnvPrefix = "ORDERSYNC"

// Config is the engine configuration. Keys are the snake_case names under
// each section, in config.toml and after EnvPrefix in the environment.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig selects the backend and sizes its pool. Lifetimes are minutes.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
}

// RedisConfig backs the distributed shop lock
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	MaxWebhookBody  int64         `mapstructure:"max_webhook_body"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	// WebhookRPS and WebhookBurst bound receiver traffic per client IP; zero RPS disables the limit
	WebhookRPS   float64 `mapstructure:"webhook_rps"`
	WebhookBurst int     `mapstructure:"webhook_burst"`
}

// SyncConfig holds scheduler, trigger and sync engine settings
type SyncConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	MaxConcurrentShops     int           `mapstructure:"max_concurrent_shops"`
	QueueSize              int           `mapstructure:"queue_size"`
	JobTimeout             time.Duration `mapstructure:"job_timeout"`
	CheckInterval          time.Duration `mapstructure:"check_interval"`
	DefaultIntervalMinutes int           `mapstructure:"default_interval_minutes"`
	LookbackMinutes        int           `mapstructure:"lookback_minutes"`
	InitialLookback        time.Duration `mapstructure:"initial_lookback"`
	PageSize               int           `mapstructure:"page_size"`
	FetchDetail            bool          `mapstructure:"fetch_detail"`
	MaxPages               int           `mapstructure:"max_pages"`
	StaleAfter             time.Duration `mapstructure:"stale_after"`
	HousekeepingCron       string        `mapstructure:"housekeeping_cron"`
	TokenRefreshCron       string        `mapstructure:"token_refresh_cron"`
}

// Lookback returns the window overlap as a duration
func (s *SyncConfig) Lookback() time.Duration {
	return time.Duration(s.LookbackMinutes) * time.Minute
}

// DefaultInterval returns the polling interval of shops without their own
func (s *SyncConfig) DefaultInterval() time.Duration {
	return time.Duration(s.DefaultIntervalMinutes) * time.Minute
}

type WebhookConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	VerifySignatures bool          `mapstructure:"verify_signatures"`
}

// PlatformConfig holds marketplace client settings
type PlatformConfig struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	TokenRefreshBuffer time.Duration `mapstructure:"token_refresh_buffer"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	MaxResponseBytes   int64         `mapstructure:"max_response_bytes"`
	UserAgent          string        `mapstructure:"user_agent"`
	// BaseURLs overrides the API host per platform, keyed by lower-case platform name
	BaseURLs map[string]string `mapstructure:"base_urls"`
}

type InventoryConfig struct {
	DeductionEnabled     bool   `mapstructure:"deduction_enabled"`
	DefaultWarehouseCode string `mapstructure:"default_warehouse_code"`
	MaxBomDepth          int    `mapstructure:"max_bom_depth"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC, host:port
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	// DBLogFullSQL puts bound values into spans and SQL logs; development only
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// defaults lists every key. Registering a key is also what lets AutomaticEnv
// override it during Unmarshal.
var defaults = map[string]any{
	"app.name": "ordersync",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             DriverPostgres,
	"database.sqlite_path":        "ordersync.db",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "ordersync",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":     "15s",
	"http.write_timeout":    "15s",
	"http.idle_timeout":     "60s",
	"http.shutdown_timeout": "30s",
	"http.max_header_bytes": 1 << 20,
	"http.max_webhook_body": 1 << 20,
	"http.trusted_proxies":  []string{},
	"http.webhook_rps":      50,
	"http.webhook_burst":    100,

	"sync.enabled":                  true,
	"sync.max_concurrent_shops":     4,
	"sync.queue_size":               100,
	"sync.job_timeout":              "15m",
	"sync.check_interval":           "1m",
	"sync.default_interval_minutes": 15,
	"sync.lookback_minutes":         10,
	"sync.initial_lookback":         "72h",
	"sync.page_size":                50,
	"sync.fetch_detail":             true,
	"sync.max_pages":                500,
	"sync.stale_after":              "10m",
	"sync.housekeeping_cron":        "*/5 * * * *",
	"sync.token_refresh_cron":       "*/2 * * * *",

	"webhook.processor_enabled": true,
	"webhook.poll_interval":     "5s",
	"webhook.batch_size":        50,
	"webhook.verify_signatures": true,

	"platform.request_timeout":      "20s",
	"platform.token_refresh_buffer": "5m",
	"platform.rate_limit_rps":       5,
	"platform.rate_limit_burst":     5,
	"platform.max_response_bytes":   8 << 20,
	"platform.user_agent":           "ordersync/1.0",

	"inventory.deduction_enabled":      true,
	"inventory.default_warehouse_code": "MAIN",
	"inventory.max_bom_depth":          10,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "ordersync",
	"telemetry.insecure":                false,
	"telemetry.metrics_interval":        "60s",
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": "200ms",
}

// Load reads ./config.toml, ./config/config.toml or /app/config.toml when
// present. Environment variables override the file, which overrides defaults.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads an explicit file, which must exist; an empty path searches
// the default locations
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize folds case-insensitive values and clamps bounded ones
func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.App.Env = strings.ToLower(c.App.Env)

	switch t := c.Platform.RequestTimeout; {
	case t < MinRequestTimeout:
		c.Platform.RequestTimeout = MinRequestTimeout
	case t > MaxRequestTimeout:
		c.Platform.RequestTimeout = MaxRequestTimeout
	}
}

type check struct {
	failed bool
	msg    string
}

func (c *Config) validate() error {
	checks := []check{
		{c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite,
			fmt.Sprintf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)},
		{c.Database.MaxOpenConns <= 0, "database.max_open_conns must be positive"},
		{c.Database.MaxIdleConns < 0, "database.max_idle_conns cannot be negative"},
		{c.Database.MaxIdleConns > c.Database.MaxOpenConns,
			fmt.Sprintf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
				c.Database.MaxIdleConns, c.Database.MaxOpenConns)},
		{c.Sync.MaxConcurrentShops < 0, "sync.max_concurrent_shops cannot be negative"},
		{c.Sync.LookbackMinutes < 0, "sync.lookback_minutes cannot be negative"},
		{c.Sync.PageSize < 1 || c.Sync.PageSize > 100,
			fmt.Sprintf("sync.page_size must be between 1 and 100, got %d", c.Sync.PageSize)},
		{c.Sync.JobTimeout < time.Minute,
			fmt.Sprintf("sync.job_timeout must be at least 1m, got %s", c.Sync.JobTimeout)},
		{c.Webhook.BatchSize < 1, "webhook.batch_size must be positive"},
		{c.HTTP.WebhookRPS < 0, "http.webhook_rps cannot be negative"},
		{c.Platform.RateLimitRPS < 0, "platform.rate_limit_rps cannot be negative"},
		{c.Inventory.MaxBomDepth < 1, "inventory.max_bom_depth must be positive"},
		{c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1,
			fmt.Sprintf("telemetry.sampling_ratio must be between 0 and 1, got %g", c.Telemetry.SamplingRatio)},
	}
	if c.IsProduction() {
		checks = append(checks,
			check{c.Database.Driver == DriverSQLite, "database.driver cannot be sqlite in production"},
			check{c.Database.Password == "", "database.password is required in production"},
			check{c.Database.SSLMode == "disable", "database.sslmode cannot be 'disable' in production"},
			check{!c.Webhook.VerifySignatures, "webhook.verify_signatures must be true in production"},
			check{c.Telemetry.DBLogFullSQL, "telemetry.db_log_full_sql must be false in production"},
		)
	}

	var errs []error
	for _, ch := range checks {
		if ch.failed {
			errs = append(errs, errors.New(ch.msg))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction returns true when running with app.env=production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the postgres URL with user and password escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
