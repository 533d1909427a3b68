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
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payments-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	AppBaseURL           string `mapstructure:"APP_BASE_URL"`

	OzowSiteCode   string `mapstructure:"OZOW_SITE_CODE"`
	OzowPrivateKey string `mapstructure:"OZOW_PRIVATE_KEY"`
	OzowAPIKey     string `mapstructure:"OZOW_API_KEY"`
	OzowAPIURL     string `mapstructure:"OZOW_API_URL"`
	OzowIsTest     bool   `mapstructure:"OZOW_IS_TEST"`

	SessionTokenSecret string `mapstructure:"SESSION_TOKEN_SECRET"`

	InitiationRateLimitPerMinute int    `mapstructure:"PAYMENT_INITIATION_RATE_LIMIT_PER_MINUTE"`
	PendingExpiryHours           int    `mapstructure:"PENDING_PAYMENT_EXPIRY_HOURS"`
	PendingExpirySchedule        string `mapstructure:"PENDING_PAYMENT_EXPIRY_SCHEDULE"`
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
	viper.SetDefault("APP_BASE_URL", "http://localhost:3000")
	viper.SetDefault("OZOW_API_URL", "https://stagingapi.ozow.com/PostPaymentRequest")
	viper.SetDefault("OZOW_IS_TEST", true)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "myyard:rate_limit")
	viper.SetDefault("PAYMENT_INITIATION_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PENDING_PAYMENT_EXPIRY_HOURS", 24)
	viper.SetDefault("PENDING_PAYMENT_EXPIRY_SCHEDULE", "@hourly")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENTS_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("APP_BASE_URL")
	_ = viper.BindEnv("OZOW_SITE_CODE")
	_ = viper.BindEnv("OZOW_PRIVATE_KEY")
	_ = viper.BindEnv("OZOW_API_KEY")
	_ = viper.BindEnv("OZOW_API_URL")
	_ = viper.BindEnv("OZOW_IS_TEST")
	_ = viper.BindEnv("SESSION_TOKEN_SECRET")
	_ = viper.BindEnv("PAYMENT_INITIATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PENDING_PAYMENT_EXPIRY_HOURS")
	_ = viper.BindEnv("PENDING_PAYMENT_EXPIRY_SCHEDULE")

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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "myyard:rate_limit"
	}
	config.OzowSiteCode = strings.TrimSpace(config.OzowSiteCode)
	config.OzowPrivateKey = strings.TrimSpace(config.OzowPrivateKey)
	config.OzowAPIKey = strings.TrimSpace(config.OzowAPIKey)

	if config.InitiationRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative initiation rate limit configured; disabling\" limit=%d", config.InitiationRateLimitPerMinute)
		config.InitiationRateLimitPerMinute = 0
	}
	if config.PendingExpiryHours <= 0 {
		config.PendingExpiryHours = 24
	}
	if strings.TrimSpace(config.PendingExpirySchedule) == "" {
		config.PendingExpirySchedule = "@hourly"
	}

	return
}
