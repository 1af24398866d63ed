package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultRequestTimeout = 30
	MaxRequestTimeout     = 300
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	NATS       NATSConfig
	Twilio     TwilioConfig
	Sentry     SentryConfig
	Tracing    TracingConfig
	Rides      RidesConfig
	Drivers    DriversConfig
	Outbox     OutboxConfig
	Pricing    PricingConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	CORSOrigins    string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host             string
	Port             string
	User             string
	Password         string
	DBName           string
	SSLMode          string
	MaxConns         int
	MinConns         int
	StatementTimeout int // milliseconds
	MigrationsPath   string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify access tokens
type JWTConfig struct {
	Secret string
}

type NATSConfig struct {
	URL     string
	Enabled bool
	Stream  string
}

// TwilioConfig configures emergency SMS escalation. Empty credentials disable it.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	EmergencyPhone string
}

// Enabled reports whether SMS alerts can be sent.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != "" && c.EmergencyPhone != ""
}

type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

type TracingConfig struct {
	Enabled        bool
	Endpoint       string
	SampleRate     float64
	ServiceVersion string
}

// RidesConfig holds ride lifecycle tuning
type RidesConfig struct {
	DriverPenalty            float64
	FreeDriverCancelsPerDay  int
	LoyaltyPointsPerRide     int
	MaxDispatch              int
	SchedulerIntervalSeconds int
}

// DriversConfig holds the online driver search bounds
type DriversConfig struct {
	SearchRadiusKm        float64
	DefaultPickupRadiusKm float64
}

// OutboxConfig controls the notification dispatcher
type OutboxConfig struct {
	PollIntervalMs     int
	BatchSize          int
	MaxAttempts        int
	SendTimeoutSeconds int
}

type PricingConfig struct {
	CacheTTLSeconds int
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    environment,
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT_SECONDS", DefaultRequestTimeout),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnv("DB_PORT", "5432"),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", "postgres"),
			DBName:           getEnv("DB_NAME", "ridecore"),
			SSLMode:          getEnv("DB_SSLMODE", "disable"),
			MaxConns:         getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:         getEnvAsInt("DB_MIN_CONNS", 5),
			StatementTimeout: getEnvAsInt("DB_STATEMENT_TIMEOUT_MS", 10000),
			MigrationsPath:   getEnv("DB_MIGRATIONS_PATH", "file://db/migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			Stream:  getEnv("NATS_STREAM", "RIDECORE"),
		},
		Twilio: TwilioConfig{
			AccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
			EmergencyPhone: getEnv("EMERGENCY_ALERT_PHONE", ""),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Environment:      getEnv("SENTRY_ENVIRONMENT", environment),
			Release:          getEnv("SENTRY_RELEASE", ""),
			SampleRate:       getEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
			TracesSampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
			Debug:            getEnvAsBool("SENTRY_DEBUG", false),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:     getEnvAsFloat("OTEL_SAMPLE_RATE", 0.1),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		},
		Rides: RidesConfig{
			DriverPenalty:            getEnvAsFloat("RIDES_DRIVER_PENALTY", 1000),
			FreeDriverCancelsPerDay:  getEnvAsInt("RIDES_FREE_DRIVER_CANCELS", 2),
			LoyaltyPointsPerRide:     getEnvAsInt("RIDES_LOYALTY_POINTS", 10),
			MaxDispatch:              getEnvAsInt("RIDES_MAX_DISPATCH", 20),
			SchedulerIntervalSeconds: getEnvAsInt("RIDES_SCHEDULER_INTERVAL_SECONDS", 60),
		},
		Drivers: DriversConfig{
			SearchRadiusKm:        getEnvAsFloat("DRIVERS_SEARCH_RADIUS_KM", 50),
			DefaultPickupRadiusKm: getEnvAsFloat("DRIVERS_DEFAULT_PICKUP_RADIUS_KM", 10),
		},
		Outbox: OutboxConfig{
			PollIntervalMs:     getEnvAsInt("OUTBOX_POLL_INTERVAL_MS", 500),
			BatchSize:          getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:        getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			SendTimeoutSeconds: getEnvAsInt("OUTBOX_SEND_TIMEOUT_SECONDS", 5),
		},
		Pricing: PricingConfig{
			CacheTTLSeconds: getEnvAsInt("PRICING_CACHE_TTL_SECONDS", 300),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.RequestTimeout <= 0 || c.Server.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be between 1 and %d, got %d", MaxRequestTimeout, c.Server.RequestTimeout)
	}
	if c.Rides.DriverPenalty < 0 {
		return fmt.Errorf("RIDES_DRIVER_PENALTY must not be negative")
	}
	if c.Rides.FreeDriverCancelsPerDay < 0 {
		return fmt.Errorf("RIDES_FREE_DRIVER_CANCELS must not be negative")
	}
	if c.Drivers.SearchRadiusKm <= 0 {
		return fmt.Errorf("DRIVERS_SEARCH_RADIUS_KM must be positive")
	}
	if c.Rides.MaxDispatch <= 0 {
		c.Rides.MaxDispatch = 20
	}
	if c.Rides.SchedulerIntervalSeconds <= 0 {
		c.Rides.SchedulerIntervalSeconds = 60
	}
	if c.Outbox.PollIntervalMs <= 0 {
		c.Outbox.PollIntervalMs = 500
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = 5
	}
	if c.Outbox.SendTimeoutSeconds <= 0 {
		c.Outbox.SendTimeoutSeconds = 5
	}

	cb := &c.Resilience.CircuitBreaker
	if cb.TimeoutSeconds <= 0 {
		cb.TimeoutSeconds = 30
	}
	if cb.IntervalSeconds <= 0 {
		cb.IntervalSeconds = 60
	}
	if cb.FailureThreshold <= 0 {
		cb.FailureThreshold = 5
	}
	if cb.SuccessThreshold <= 0 {
		cb.SuccessThreshold = 1
	}
	return nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c OutboxConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c RidesConfig) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSeconds) * time.Second
}

func (c PricingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
