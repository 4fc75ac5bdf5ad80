package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NewRelic    NewRelicConfig
	Dispatch    DispatchConfig
	Provisioner ProvisionerConfig
	Pricing     PricingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// DispatchConfig holds ride dispatch behavior settings.
type DispatchConfig struct {
	// DriverStaleAfter demotes online drivers that have not sent a
	// heartbeat within this window.
	DriverStaleAfter time.Duration
	// AutoCompleteTrips, when set, completes assigned rides after
	// TripDuration to simulate the trip ending.
	AutoCompleteTrips bool
	TripDuration      time.Duration
}

// ProvisionerConfig holds the per-ride resource pool settings.
type ProvisionerConfig struct {
	PortBase int
	PoolSize int
}

// PricingConfig selects and parameterizes the fare policy.
type PricingConfig struct {
	Policy   string // "fixed" or "distance"
	BaseFare float64
	PerKm    float64
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8000"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ride_dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ride-dispatch-engine"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Dispatch: DispatchConfig{
			DriverStaleAfter:  getDurationEnv("DRIVER_STALE_AFTER", 15*time.Second),
			AutoCompleteTrips: getBoolEnv("TRIP_AUTO_COMPLETE", true),
			TripDuration:      getDurationEnv("TRIP_DURATION", time.Minute),
		},
		Provisioner: ProvisionerConfig{
			PortBase: getIntEnv("RIDE_PORT_BASE", 7000),
			PoolSize: getIntEnv("RIDE_PORT_POOL_SIZE", 50),
		},
		Pricing: PricingConfig{
			Policy:   getEnv("PRICING_POLICY", "fixed"),
			BaseFare: getFloatEnv("BASE_FARE", 100.0),
			PerKm:    getFloatEnv("FARE_PER_KM", 12.0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
