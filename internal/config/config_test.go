package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "OZOW_API_URL")
	unsetEnvWithCleanup(t, "PENDING_PAYMENT_EXPIRY_HOURS")
	unsetEnvWithCleanup(t, "PENDING_PAYMENT_EXPIRY_SCHEDULE")
	unsetEnvWithCleanup(t, "PAYMENT_INITIATION_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.OzowAPIURL != "https://stagingapi.ozow.com/PostPaymentRequest" {
		t.Fatalf("expected staging Ozow API URL default, got %q", cfg.OzowAPIURL)
	}
	if cfg.PendingExpiryHours != 24 {
		t.Fatalf("expected default PendingExpiryHours 24, got %d", cfg.PendingExpiryHours)
	}
	if cfg.PendingExpirySchedule != "@hourly" {
		t.Fatalf("expected default PendingExpirySchedule @hourly, got %q", cfg.PendingExpirySchedule)
	}
	if cfg.InitiationRateLimitPerMinute != 10 {
		t.Fatalf("expected default initiation rate limit 10, got %d", cfg.InitiationRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "myyard:rate_limit" {
		t.Fatalf("expected default rate limit prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9191")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9191" {
		t.Fatalf("expected PORT to override ServerPort, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_TrimsOzowCredentials(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "OZOW_SITE_CODE", "  TSTSTE0001  ")
	setEnvWithCleanup(t, "OZOW_PRIVATE_KEY", " 215114531AFF7134A94C88CEEA48E ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OzowSiteCode != "TSTSTE0001" {
		t.Fatalf("expected trimmed site code, got %q", cfg.OzowSiteCode)
	}
	if cfg.OzowPrivateKey != "215114531AFF7134A94C88CEEA48E" {
		t.Fatalf("expected trimmed private key, got %q", cfg.OzowPrivateKey)
	}
}

func TestLoadConfig_NegativeRateLimitDisablesLimiting(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_INITIATION_RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InitiationRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit to be normalized to 0, got %d", cfg.InitiationRateLimitPerMinute)
	}
}

func TestLoadConfig_InvalidExpiryHoursFallsBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PENDING_PAYMENT_EXPIRY_HOURS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PendingExpiryHours != 24 {
		t.Fatalf("expected PendingExpiryHours fallback to 24, got %d", cfg.PendingExpiryHours)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
