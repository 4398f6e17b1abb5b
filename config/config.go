package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Member progress store
	Database DatabaseConfig

	// Redis (voice events, role directory, role commands, caches)
	Redis RedisConfig

	// XP accrual and level-up announcements
	Progression ProgressionConfig

	// Tier roles
	Roles RolesConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Observability
	Observability ObservabilityConfig

	// Feature Flags
	Features *FeatureFlags `ignored:"true"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `envconfig:"APP_NAME" default:"xpbot"`
	Environment Environment `envconfig:"APP_ENV" default:"development"`
	Version     string      `envconfig:"APP_VERSION" default:"0.1.0"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// "postgres" or "memory"
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// Full connection string. When empty it is built from the POSTGRES_* parts.
	URL string `envconfig:"DATABASE_URL"`

	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"xpbot"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Name     string `envconfig:"POSTGRES_DB" default:"xpbot"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	// Connection pool settings
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"30m"`

	// Query timeout
	QueryTimeout time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"10s"`

	// Startup connection attempts before giving up
	ConnectAttempts int `envconfig:"DB_CONNECT_ATTEMPTS" default:"5"`
}

// DSN returns the connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	// Pool settings
	PoolSize     int `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`

	// Timeouts
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`

	// Run without Redis: no voice event stream, roles are never mutated.
	Disabled bool `envconfig:"REDIS_DISABLED" default:"false"`
}

// ProgressionConfig holds XP accrual settings.
type ProgressionConfig struct {
	XPPerMinute int64 `envconfig:"XP_PER_MINUTE" default:"6"`

	LevelUpAnnounceEnabled bool  `envconfig:"LEVELUP_ANNOUNCE_ENABLED" default:"false"`
	LevelUpChannelID       int64 `envconfig:"LEVELUP_CHANNEL_ID" default:"0"`
}

// RolesConfig holds tier role settings.
type RolesConfig struct {
	ConfigPath     string        `envconfig:"ROLES_CONFIG_PATH" default:"config/roles_config.yaml"`
	ReloadInterval time.Duration `envconfig:"ROLES_RELOAD_INTERVAL" default:"5m"`

	// Pacing of role commands sent to the gateway
	CommandsPerSecond float64       `envconfig:"ROLE_COMMANDS_PER_SECOND" default:"5"`
	CommandsBurst     int           `envconfig:"ROLE_COMMANDS_BURST" default:"10"`
	CommandWait       time.Duration `envconfig:"ROLE_COMMAND_MAX_WAIT" default:"10s"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool `envconfig:"SCHEDULER_ENABLED" default:"true"`

	// Periodic credit of open voice sessions
	VoiceTickInterval time.Duration `envconfig:"VOICE_TICK_INTERVAL" default:"60s"`

	JobTimeout time.Duration `envconfig:"SCHEDULER_JOB_TIMEOUT" default:"2m"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	// Logging: level is debug, info, warn or error; format is json or console.
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Metrics
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	cfg.Features = LoadFeatureFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Progression.XPPerMinute <= 0 {
		errs = append(errs, "XP_PER_MINUTE must be positive")
	}

	if c.Progression.LevelUpAnnounceEnabled && c.Progression.LevelUpChannelID <= 0 {
		errs = append(errs, "LEVELUP_CHANNEL_ID is required when LEVELUP_ANNOUNCE_ENABLED is set")
	}

	switch c.Database.Driver {
	case StoreDriverPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			errs = append(errs, "DATABASE_URL or POSTGRES_HOST is required for the postgres store")
		}
	case StoreDriverMemory:
		if c.App.Environment == EnvProduction {
			errs = append(errs, "STORE_DRIVER=memory is not allowed in production")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}

	if c.Scheduler.VoiceTickInterval < time.Second {
		errs = append(errs, "VOICE_TICK_INTERVAL must be at least 1s")
	}

	if c.Roles.ConfigPath == "" {
		errs = append(errs, "ROLES_CONFIG_PATH is required")
	}

	if c.Roles.CommandsPerSecond <= 0 || c.Roles.CommandsBurst < 1 {
		errs = append(errs, "ROLE_COMMANDS_PER_SECOND must be positive and ROLE_COMMANDS_BURST at least 1")
	}

	if c.Database.ConnectAttempts < 1 {
		errs = append(errs, "DB_CONNECT_ATTEMPTS must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

type ctxKey string

const configContextKey ctxKey = "xpbot.config"

// WithContext attaches the configuration to ctx.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

// FromContext returns the configuration stored in ctx, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}
