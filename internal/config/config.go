package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	envDevelopment = "development"
	envProduction  = "production"
)

// Config captures application runtime configuration.
type Config struct {
	AppName         string        `mapstructure:"APP_NAME"`
	AppEnv          string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"PORT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	ShutdownPeriod  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL  time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	RefreshSecret   string        `mapstructure:"JWT_REFRESH_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	LoginAttemptsPerMinute int `mapstructure:"LOGIN_ATTEMPTS_PER_MINUTE"`

	DefaultCurrency  string `mapstructure:"WALLET_DEFAULT_CURRENCY"`
	DailyLimit       string `mapstructure:"WALLET_DAILY_LIMIT"`
	TransactionLimit string `mapstructure:"WALLET_TRANSACTION_LIMIT"`
	MonthlyLimit     string `mapstructure:"WALLET_MONTHLY_LIMIT"`
	EnforceMonthly   bool   `mapstructure:"WALLET_ENFORCE_MONTHLY_LIMIT"`
	LedgerTimezone   string `mapstructure:"LEDGER_TIMEZONE"`
	ConflictRetries  int    `mapstructure:"WALLET_CONFLICT_RETRIES"`

	// OperatorAPIKey guards the back-office routes. Empty disables them.
	OperatorAPIKey string `mapstructure:"OPERATOR_API_KEY"`
}

var keys = []string{
	"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
	"SHUTDOWN_TIMEOUT", "IDEMPOTENCY_TTL", "JWT_SECRET", "JWT_REFRESH_SECRET",
	"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "LOGIN_ATTEMPTS_PER_MINUTE",
	"WALLET_DEFAULT_CURRENCY", "WALLET_DAILY_LIMIT", "WALLET_TRANSACTION_LIMIT",
	"WALLET_MONTHLY_LIMIT", "WALLET_ENFORCE_MONTHLY_LIMIT", "LEDGER_TIMEZONE",
	"WALLET_CONFLICT_RETRIES", "OPERATOR_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "MFI Wallet")
	v.SetDefault("APP_ENV", envDevelopment)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("LOGIN_ATTEMPTS_PER_MINUTE", 5)
	v.SetDefault("WALLET_DEFAULT_CURRENCY", "XAF")
	v.SetDefault("WALLET_DAILY_LIMIT", "10000000")
	v.SetDefault("WALLET_TRANSACTION_LIMIT", "5000000")
	v.SetDefault("WALLET_MONTHLY_LIMIT", "50000000")
	v.SetDefault("WALLET_ENFORCE_MONTHLY_LIMIT", true)
	v.SetDefault("LEDGER_TIMEZONE", "Africa/Brazzaville")
	v.SetDefault("WALLET_CONFLICT_RETRIES", 3)
	v.SetDefault("OPERATOR_API_KEY", "")
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and the environment, in increasing order of precedence.
// Outside development the database, Redis and both JWT secrets are required.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	setDefaults(v)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.DefaultCurrency = strings.ToUpper(cfg.DefaultCurrency)
	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-access-secret"
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = "dev-refresh-secret"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, _, err := c.Limits(); err != nil {
		return err
	}
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL must be set")
	}
	if c.JWTSecret == "" || c.RefreshSecret == "" {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set")
	}
	return nil
}

// IsDev reports whether the service runs in development mode, where missing
// backing stores fall back to in-memory implementations.
func (c Config) IsDev() bool {
	return c.AppEnv == "" || c.AppEnv == envDevelopment
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.AppEnv == envProduction
}

// Location resolves the ledger timezone used for daily and monthly windows.
func (c Config) Location() (*time.Location, error) {
	if c.LedgerTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Limits parses the default daily, per-transaction and monthly limits.
func (c Config) Limits() (daily, transaction, monthly decimal.Decimal, err error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s: %w", name, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", name)
		}
		return d, nil
	}
	if daily, err = parse("WALLET_DAILY_LIMIT", c.DailyLimit); err != nil {
		return
	}
	if transaction, err = parse("WALLET_TRANSACTION_LIMIT", c.TransactionLimit); err != nil {
		return
	}
	monthly, err = parse("WALLET_MONTHLY_LIMIT", c.MonthlyLimit)
	return
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
