package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Dialer: DialerConfig{PublicBaseURL: "https://dialer.example.com"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "DIALER_PUBLIC_BASE_URL") {
		t.Fatalf("expected dialer base url in error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLModeAndTwilio(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production")
	}
	for _, want := range []string{"DB_SSLMODE", "TWILIO_ACCOUNT_SID", "TWILIO_VALIDATE_SIGNATURES"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Dialer.MaxInFlightPerAgent != 1 {
		t.Fatalf("expected one in-flight dial per agent by default, got %d", c.Dialer.MaxInFlightPerAgent)
	}
	if c.Dialer.InFlightTTL != 2*time.Minute {
		t.Fatalf("unexpected in-flight ttl %v", c.Dialer.InFlightTTL)
	}
	if c.Dialer.QueueLowWater != 5 {
		t.Fatalf("expected low water 5, got %d", c.Dialer.QueueLowWater)
	}
}

func TestValidate_RejectsRelativeBaseURL(t *testing.T) {
	c := validLocal()
	c.Dialer.PublicBaseURL = "/relative"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8081")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "dialer")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DIALER_PUBLIC_BASE_URL", "https://dialer.example.com/")
	t.Setenv("DIALER_MAX_INFLIGHT_PER_AGENT", "2")
	t.Setenv("TWILIO_CALLS_PER_SECOND", "5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dialer.PublicBaseURL != "https://dialer.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Dialer.PublicBaseURL)
	}
	if c.Dialer.MaxInFlightPerAgent != 2 || c.Twilio.CallsPerSecond != 5 {
		t.Fatalf("unexpected dialer/twilio config: %+v %+v", c.Dialer, c.Twilio)
	}
}

func TestLoad_RejectsBadInteger(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
