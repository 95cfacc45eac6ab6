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
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the banking-service.
// These values are loaded from environment variables. Monetary thresholds are
// kept in cents internally; the *_CENTS variables take them directly, while
// the unsuffixed aliases accept whole currency units.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	AccountEventQueue       string `mapstructure:"ACCOUNT_EVENT_QUEUE"`
	MovementEventQueue      string `mapstructure:"MOVEMENT_EVENT_QUEUE"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	AdminUserID             string `mapstructure:"ADMIN_USER_ID"`
	AdminAlertThreshold     int64  `mapstructure:"ADMIN_ALERT_THRESHOLD_CENTS"`
	UnverifiedTransferLimit int64  `mapstructure:"UNVERIFIED_TRANSFER_LIMIT_CENTS"`
	SettlementDelaySeconds  int    `mapstructure:"SETTLEMENT_DELAY_SECONDS"`
	SettlementSweepSchedule string `mapstructure:"SETTLEMENT_SWEEP_SCHEDULE"`
	ProjectionTTLSeconds    int    `mapstructure:"PROJECTION_TTL_SECONDS"`
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
	viper.SetDefault("ACCOUNT_EVENT_QUEUE", "banking_service.account_events")
	viper.SetDefault("MOVEMENT_EVENT_QUEUE", "banking_service.movement_events")
	viper.SetDefault("ADMIN_ALERT_THRESHOLD_CENTS", 1_000_000)
	viper.SetDefault("UNVERIFIED_TRANSFER_LIMIT_CENTS", 100_000)
	viper.SetDefault("SETTLEMENT_DELAY_SECONDS", 300)
	viper.SetDefault("SETTLEMENT_SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("PROJECTION_TTL_SECONDS", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCOUNT_EVENT_QUEUE")
	_ = viper.BindEnv("MOVEMENT_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BANKING_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ADMIN_USER_ID")
	_ = viper.BindEnv("ADMIN_ALERT_THRESHOLD_CENTS")
	_ = viper.BindEnv("ADMIN_ALERT_THRESHOLD")
	_ = viper.BindEnv("UNVERIFIED_TRANSFER_LIMIT_CENTS")
	_ = viper.BindEnv("UNVERIFIED_TRANSFER_LIMIT")
	_ = viper.BindEnv("SETTLEMENT_DELAY_SECONDS")
	_ = viper.BindEnv("SETTLEMENT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("PROJECTION_TTL_SECONDS")

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
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("BANKING_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)

	// Allow specifying thresholds in whole currency units.
	if cents, ok := centsFromWholeUnits("ADMIN_ALERT_THRESHOLD"); ok {
		config.AdminAlertThreshold = cents
	}
	if cents, ok := centsFromWholeUnits("UNVERIFIED_TRANSFER_LIMIT"); ok {
		config.UnverifiedTransferLimit = cents
	}

	if config.AdminAlertThreshold < 0 {
		log.Printf("level=warn component=config msg=\"negative admin alert threshold configured; coercing to zero\" threshold_cents=%d", config.AdminAlertThreshold)
		config.AdminAlertThreshold = 0
	}
	if config.UnverifiedTransferLimit < 0 {
		log.Printf("level=warn component=config msg=\"negative unverified transfer limit configured; coercing to zero\" limit_cents=%d", config.UnverifiedTransferLimit)
		config.UnverifiedTransferLimit = 0
	}
	if config.SettlementDelaySeconds < 0 {
		config.SettlementDelaySeconds = 0
	}
	if config.ProjectionTTLSeconds <= 0 {
		config.ProjectionTTLSeconds = 60
	}
	if strings.TrimSpace(config.SettlementSweepSchedule) == "" {
		config.SettlementSweepSchedule = "@every 1m"
	}

	return
}

// centsFromWholeUnits reads an env var holding a whole-currency amount (e.g.
// "150.50") and converts it to cents. The second return reports whether the
// variable was set and parseable.
func centsFromWholeUnits(key string) (int64, bool) {
	if !viper.IsSet(key) {
		return 0, false
	}
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid %s\" value=%q err=%v", key, raw, err)
		return 0, false
	}
	return int64(math.Round(value * 100)), true
}
