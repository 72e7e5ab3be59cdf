package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

const devJWTSecret = "mockbank-development-secret"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `envconfig:"APP_NAME" default:"MockBank"`
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	JWTSecret        string        `envconfig:"JWT_SECRET"`
	AccessTokenTTL   time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"12h"`
	RecoveryTokenTTL time.Duration `envconfig:"RECOVERY_TOKEN_TTL" default:"10m"`
	SessionWindow    time.Duration `envconfig:"SESSION_WINDOW" default:"30m"`

	Timezone               string `envconfig:"BANK_TIMEZONE" default:"America/Bogota"`
	MaxTransactionAmount   int64  `envconfig:"MAX_TRANSACTION_AMOUNT" default:"10000000"`
	DailyTransactionLimit  int64  `envconfig:"DAILY_TRANSACTION_LIMIT" default:"50000000"`
	LoginAttemptsPerMinute int    `envconfig:"LOGIN_ATTEMPTS_PER_MINUTE" default:"5"`
	StatementConcurrency   int64  `envconfig:"STATEMENT_CONCURRENCY" default:"4"`
	SnowflakeNode          int64  `envconfig:"SNOWFLAKE_NODE" default:"1"`
	SeedFile               string `envconfig:"SEED_FILE"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid BANK_TIMEZONE: %w", err)
	}
	if c.SessionWindow <= 0 {
		return errors.New("SESSION_WINDOW must be positive")
	}
	if c.MaxTransactionAmount <= 0 || c.DailyTransactionLimit <= 0 {
		return errors.New("transaction limits must be positive")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be within 0..1023, got %d", c.SnowflakeNode)
	}

	if c.IsDevelopment() {
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
		return nil
	}

	// Outside development the in-memory stores are never used.
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Location resolves the bank timezone used for calendar periods (statements, daily limits).
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
