/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the earnings-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventsQueue          string `mapstructure:"EVENTS_QUEUE"`

	GatewayAPIBaseURL    string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey        string `mapstructure:"GATEWAY_API_KEY"`
	GatewayWebhookSecret string `mapstructure:"GATEWAY_WEBHOOK_SECRET"`

	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	SettlementDelayHours int `mapstructure:"SETTLEMENT_DELAY_HOURS"`
	// MinPayoutTZS / MinPayoutUSD are minor units (cents for USD; TZS has no
	// subunit in practice, amounts are whole shillings).
	MinPayoutTZS int64 `mapstructure:"MIN_PAYOUT_TZS"`
	MinPayoutUSD int64 `mapstructure:"MIN_PAYOUT_USD"`

	PayoutRateLimitPerHour    int `mapstructure:"PAYOUT_RATE_LIMIT_PER_HOUR"`
	ReconcileIntervalMinutes  int `mapstructure:"RECONCILE_INTERVAL_MINUTES"`
	SettlementIntervalMinutes int `mapstructure:"SETTLEMENT_INTERVAL_MINUTES"`
	StalePayoutThresholdMin   int `mapstructure:"STALE_PAYOUT_THRESHOLD_MINUTES"`
	GatewayTimeoutSeconds     int `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	BalanceConflictRetries    int `mapstructure:"BALANCE_CONFLICT_RETRIES"`
	DefaultPlatformFeeBps     int `mapstructure:"DEFAULT_PLATFORM_FEE_BPS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENTS_QUEUE", "earnings_service.gateway_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "earnings:rate_limit")
	viper.SetDefault("SETTLEMENT_DELAY_HOURS", 0)
	viper.SetDefault("MIN_PAYOUT_TZS", 10000)
	viper.SetDefault("MIN_PAYOUT_USD", 500)
	viper.SetDefault("PAYOUT_RATE_LIMIT_PER_HOUR", 10)
	viper.SetDefault("RECONCILE_INTERVAL_MINUTES", 60)
	viper.SetDefault("SETTLEMENT_INTERVAL_MINUTES", 5)
	viper.SetDefault("STALE_PAYOUT_THRESHOLD_MINUTES", 30)
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("BALANCE_CONFLICT_RETRIES", 3)
	viper.SetDefault("DEFAULT_PLATFORM_FEE_BPS", 800)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "EARNINGS_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_QUEUE")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY")
	_ = viper.BindEnv("GATEWAY_WEBHOOK_SECRET")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "EARNINGS_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("SETTLEMENT_DELAY_HOURS")
	_ = viper.BindEnv("MIN_PAYOUT_TZS")
	_ = viper.BindEnv("MIN_PAYOUT_USD")
	_ = viper.BindEnv("PAYOUT_RATE_LIMIT_PER_HOUR")
	_ = viper.BindEnv("RECONCILE_INTERVAL_MINUTES")
	_ = viper.BindEnv("SETTLEMENT_INTERVAL_MINUTES")
	_ = viper.BindEnv("STALE_PAYOUT_THRESHOLD_MINUTES")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("BALANCE_CONFLICT_RETRIES")
	_ = viper.BindEnv("DEFAULT_PLATFORM_FEE_BPS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("EARNINGS_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "earnings:rate_limit"
	}
	config.GatewayWebhookSecret = strings.Trim(strings.TrimSpace(config.GatewayWebhookSecret), "\"'")

	if config.SettlementDelayHours < 0 {
		log.Printf("level=warn component=config msg=\"negative settlement delay configured; coercing to zero\" hours=%d", config.SettlementDelayHours)
		config.SettlementDelayHours = 0
	}

	// Allow overriding the TZS minimum in whole shillings via MIN_PAYOUT.
	if viper.IsSet("MIN_PAYOUT") {
		minStr := strings.TrimSpace(viper.GetString("MIN_PAYOUT"))
		if minStr != "" {
			minValue, parseErr := strconv.ParseInt(minStr, 10, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid MIN_PAYOUT\" value=%q err=%v", minStr, parseErr)
			} else {
				config.MinPayoutTZS = minValue
			}
		}
	}

	if config.MinPayoutTZS < 0 {
		log.Printf("level=warn component=config msg=\"negative TZS payout minimum configured; coercing to zero\" minimum=%d", config.MinPayoutTZS)
		config.MinPayoutTZS = 0
	}
	if config.MinPayoutUSD < 0 {
		log.Printf("level=warn component=config msg=\"negative USD payout minimum configured; coercing to zero\" minimum=%d", config.MinPayoutUSD)
		config.MinPayoutUSD = 0
	}

	if config.PayoutRateLimitPerHour <= 0 {
		config.PayoutRateLimitPerHour = 10
	}
	if config.ReconcileIntervalMinutes <= 0 {
		config.ReconcileIntervalMinutes = 60
	}
	if config.SettlementIntervalMinutes <= 0 {
		config.SettlementIntervalMinutes = 5
	}
	if config.StalePayoutThresholdMin <= 0 {
		config.StalePayoutThresholdMin = 30
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 30
	}
	if config.BalanceConflictRetries <= 0 {
		config.BalanceConflictRetries = 3
	}
	if config.DefaultPlatformFeeBps < 0 || config.DefaultPlatformFeeBps > 10000 {
		log.Printf("level=warn component=config msg=\"platform fee bps out of range; using 800\" bps=%d", config.DefaultPlatformFeeBps)
		config.DefaultPlatformFeeBps = 800
	}

	return
}
