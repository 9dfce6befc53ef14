package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the api and worker processes need.
// Values come from the environment (a local .env file is honoured when present).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Dialer DialerConfig
	Asynq  AsynqConfig
}

type AppConfig struct {
	Env  string
	Port int

	// MigrateOnStart runs goose migrations before serving.
	MigrateOnStart bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// CallsPerSecond caps outbound call creation against the account CPS limit.
	CallsPerSecond float64

	// ValidateSignatures enables X-Twilio-Signature checks on webhook routes.
	ValidateSignatures bool
}

type DialerConfig struct {
	// PublicBaseURL is the externally reachable base used for answer and status callback URLs.
	PublicBaseURL string

	// MaxInFlightPerAgent is the number of concurrent predictive dials per agent conference.
	MaxInFlightPerAgent int
	// InFlightTTL bounds how long a dial slot can stay taken without a callback.
	InFlightTTL time.Duration
	// StopTTL is how long a leave-campaign stop flag suppresses feed-forward.
	StopTTL time.Duration

	PhoneRegion string

	// QueueLowWater is the loaded-household count under which the UI should fetch more.
	QueueLowWater int
}

type AsynqConfig struct {
	Queue       string
	Concurrency int
}

func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")
	c.App.MigrateOnStart = optionalBool("APP_MIGRATE_ON_START")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = requiredInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = optionalInt(parseErrs, "DB_MAX_OPEN_CONNS")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = requiredInt(parseErrs, "REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = optionalInt(parseErrs, "REDIS_DB")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.CallsPerSecond, parseErrs = optionalFloat(parseErrs, "TWILIO_CALLS_PER_SECOND")
	c.Twilio.ValidateSignatures = optionalBool("TWILIO_VALIDATE_SIGNATURES")

	c.Dialer.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("DIALER_PUBLIC_BASE_URL")), "/")
	c.Dialer.MaxInFlightPerAgent, parseErrs = optionalInt(parseErrs, "DIALER_MAX_INFLIGHT_PER_AGENT")
	c.Dialer.InFlightTTL, parseErrs = optionalDuration(parseErrs, "DIALER_INFLIGHT_TTL")
	c.Dialer.StopTTL, parseErrs = optionalDuration(parseErrs, "DIALER_STOP_TTL")
	c.Dialer.PhoneRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("DIALER_PHONE_REGION")))
	c.Dialer.QueueLowWater, parseErrs = optionalInt(parseErrs, "DIALER_QUEUE_LOW_WATER")

	c.Asynq.Queue = strings.TrimSpace(os.Getenv("ASYNQ_QUEUE"))
	c.Asynq.Concurrency, parseErrs = optionalInt(parseErrs, "ASYNQ_CONCURRENCY")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate fills defaults in place and reports every invalid or missing setting at once.
func (c *Config) Validate() error {
	c.applyDefaults()

	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.IsProduction() {
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required in production"))
		}
		if !c.Twilio.ValidateSignatures {
			errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURES must be enabled in production"))
		}
	}
	if c.Twilio.CallsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("TWILIO_CALLS_PER_SECOND must be > 0, got %v", c.Twilio.CallsPerSecond))
	}

	if c.Dialer.PublicBaseURL == "" {
		errs = append(errs, errors.New("DIALER_PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.Dialer.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("DIALER_PUBLIC_BASE_URL must be an absolute URL, got %q", c.Dialer.PublicBaseURL))
	}
	if c.Dialer.MaxInFlightPerAgent < 1 {
		errs = append(errs, fmt.Errorf("DIALER_MAX_INFLIGHT_PER_AGENT must be >= 1, got %d", c.Dialer.MaxInFlightPerAgent))
	}

	return joinErrors(errs)
}

func (c *Config) applyDefaults() {
	if c.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Twilio.CallsPerSecond == 0 {
		c.Twilio.CallsPerSecond = 1
	}
	if c.Dialer.MaxInFlightPerAgent == 0 {
		c.Dialer.MaxInFlightPerAgent = 1
	}
	if c.Dialer.InFlightTTL <= 0 {
		c.Dialer.InFlightTTL = 2 * time.Minute
	}
	if c.Dialer.StopTTL <= 0 {
		c.Dialer.StopTTL = 10 * time.Minute
	}
	if c.Dialer.PhoneRegion == "" {
		c.Dialer.PhoneRegion = "US"
	}
	if c.Dialer.QueueLowWater <= 0 {
		c.Dialer.QueueLowWater = 5
	}
	if c.Asynq.Queue == "" {
		c.Asynq.Queue = "dialer"
	}
	if c.Asynq.Concurrency <= 0 {
		c.Asynq.Concurrency = 10
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalFloat(errs []error, key string) (float64, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
	}
	return f, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
