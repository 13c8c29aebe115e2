// Package config loads service settings from the environment and an optional
// .env file using viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/pricing"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for the admission service.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32  `mapstructure:"DB_MIN_CONNS"`
	StorageDriver           string `mapstructure:"STORAGE_DRIVER"`
	AutoMigrate             bool   `mapstructure:"AUTO_MIGRATE"`
	LogFormat               string `mapstructure:"LOG_FORMAT"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RegisterRateLimitPerMin int    `mapstructure:"REGISTER_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	EventExchange           string `mapstructure:"EVENT_EXCHANGE"`
	GatewayEventExchange    string `mapstructure:"GATEWAY_EVENT_EXCHANGE"`
	GatewayEventQueue       string `mapstructure:"GATEWAY_EVENT_QUEUE"`
	GatewayBaseURL          string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayClientID         string `mapstructure:"GATEWAY_CLIENT_ID"`
	GatewayClientSecret     string `mapstructure:"GATEWAY_CLIENT_SECRET"`
	GatewayWebhookSecret    string `mapstructure:"GATEWAY_WEBHOOK_SECRET"`
	GatewayTimeoutSeconds   int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	EncryptionKey           string `mapstructure:"ENCRYPTION_KEY"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	JWTIssuer               string `mapstructure:"JWT_ISSUER"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SlidingScaleMaxPercent  string `mapstructure:"SLIDING_SCALE_MAX_PERCENT"`
	RefundReasonMinLength   int    `mapstructure:"REFUND_REASON_MIN_LENGTH"`
	AdmissionMaxRetries     int    `mapstructure:"ADMISSION_MAX_RETRIES"`
	DefaultCurrency         string `mapstructure:"DEFAULT_CURRENCY"`
	ReconcileSchedule       string `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcileStaleAfterMin  int    `mapstructure:"RECONCILE_STALE_AFTER_MINUTES"`
	ReconcileBatchSize      int    `mapstructure:"RECONCILE_BATCH_SIZE"`

	maxSlidingScale pricing.Percentage
	currency        money.Currency
}

var keys = []string{
	"SERVER_PORT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "STORAGE_DRIVER", "AUTO_MIGRATE",
	"LOG_FORMAT", "REDIS_URL", "REDIS_RATE_LIMIT_PREFIX", "REGISTER_RATE_LIMIT_PER_MINUTE",
	"RABBITMQ_URL", "EVENT_EXCHANGE", "GATEWAY_EVENT_EXCHANGE", "GATEWAY_EVENT_QUEUE",
	"GATEWAY_BASE_URL", "GATEWAY_CLIENT_ID", "GATEWAY_CLIENT_SECRET", "GATEWAY_WEBHOOK_SECRET",
	"GATEWAY_TIMEOUT_SECONDS", "ENCRYPTION_KEY", "JWT_SECRET", "JWT_ISSUER", "CORS_ALLOWED_ORIGINS",
	"SLIDING_SCALE_MAX_PERCENT", "REFUND_REASON_MIN_LENGTH", "ADMISSION_MAX_RETRIES",
	"DEFAULT_CURRENCY", "RECONCILE_SCHEDULE", "RECONCILE_STALE_AFTER_MINUTES", "RECONCILE_BATCH_SIZE",
}

// LoadConfig reads configuration from the environment and an optional .env in path.
// Out-of-range values fall back to their defaults with a warning; a missing
// encryption key is an error.
func LoadConfig(path string) (Config, error) {
	var config Config

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("STORAGE_DRIVER", StoragePostgres)
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "admission:rate_limit")
	viper.SetDefault("REGISTER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("EVENT_EXCHANGE", "admission.events")
	viper.SetDefault("GATEWAY_EVENT_EXCHANGE", "gateway.events")
	viper.SetDefault("GATEWAY_EVENT_QUEUE", "admission.gateway_events")
	viper.SetDefault("GATEWAY_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 20)
	viper.SetDefault("JWT_ISSUER", "event-admission-ledger")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("SLIDING_SCALE_MAX_PERCENT", "75")
	viper.SetDefault("REFUND_REASON_MIN_LENGTH", 10)
	viper.SetDefault("ADMISSION_MAX_RETRIES", 3)
	viper.SetDefault("DEFAULT_CURRENCY", string(money.USD))
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	viper.SetDefault("RECONCILE_STALE_AFTER_MINUTES", 15)
	viper.SetDefault("RECONCILE_BATCH_SIZE", 100)

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("PORT")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if err := config.normalize(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) normalize() error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		slog.Warn("unknown storage driver; using postgres", "component", "config", "value", c.StorageDriver)
		c.StorageDriver = StoragePostgres
	}
	if c.StorageDriver == StoragePostgres && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %s", StoragePostgres)
	}

	c.EncryptionKey = strings.TrimSpace(c.EncryptionKey)
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RedisRateLimitPrefix = strings.TrimSpace(c.RedisRateLimitPrefix)
	if c.RedisRateLimitPrefix == "" {
		c.RedisRateLimitPrefix = "admission:rate_limit"
	}

	if c.DBMaxConns <= 0 {
		slog.Warn("invalid DB_MAX_CONNS; using default", "component", "config", "value", c.DBMaxConns)
		c.DBMaxConns = 20
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		slog.Warn("invalid DB_MIN_CONNS; using default", "component", "config", "value", c.DBMinConns)
		c.DBMinConns = min(2, c.DBMaxConns)
	}
	if c.RegisterRateLimitPerMin <= 0 {
		slog.Warn("invalid REGISTER_RATE_LIMIT_PER_MINUTE; using default", "component", "config", "value", c.RegisterRateLimitPerMin)
		c.RegisterRateLimitPerMin = 30
	}
	if c.GatewayTimeoutSeconds <= 0 {
		slog.Warn("invalid GATEWAY_TIMEOUT_SECONDS; using default", "component", "config", "value", c.GatewayTimeoutSeconds)
		c.GatewayTimeoutSeconds = 20
	}
	if c.RefundReasonMinLength <= 0 {
		slog.Warn("invalid REFUND_REASON_MIN_LENGTH; using default", "component", "config", "value", c.RefundReasonMinLength)
		c.RefundReasonMinLength = 10
	}
	if c.AdmissionMaxRetries < 0 {
		slog.Warn("negative ADMISSION_MAX_RETRIES; using default", "component", "config", "value", c.AdmissionMaxRetries)
		c.AdmissionMaxRetries = 3
	}
	if c.ReconcileStaleAfterMin <= 0 {
		slog.Warn("invalid RECONCILE_STALE_AFTER_MINUTES; using default", "component", "config", "value", c.ReconcileStaleAfterMin)
		c.ReconcileStaleAfterMin = 15
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = 100
	}
	if strings.TrimSpace(c.ReconcileSchedule) == "" {
		c.ReconcileSchedule = "@every 5m"
	}

	c.maxSlidingScale = pricing.DefaultMaxPercentage
	if p, err := pricing.ParsePercentage(c.SlidingScaleMaxPercent); err != nil || p <= 0 || p > pricing.Percent(100) {
		slog.Warn("invalid SLIDING_SCALE_MAX_PERCENT; using default", "component", "config", "value", c.SlidingScaleMaxPercent)
	} else {
		c.maxSlidingScale = p
	}

	c.currency = money.USD
	if cur, err := money.ParseCurrency(c.DefaultCurrency); err != nil {
		slog.Warn("unsupported DEFAULT_CURRENCY; using USD", "component", "config", "value", c.DefaultCurrency)
	} else {
		c.currency = cur
	}
	return nil
}

// MaxSlidingScale is the highest discount a member may request.
func (c Config) MaxSlidingScale() pricing.Percentage { return c.maxSlidingScale }

// Currency is used when a payment request names none.
func (c Config) Currency() money.Currency { return c.currency }

func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c Config) ReconcileStaleAfter() time.Duration {
	return time.Duration(c.ReconcileStaleAfterMin) * time.Minute
}

// CORSOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
